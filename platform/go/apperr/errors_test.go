package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Invalid("name", "name is required"), http.StatusBadRequest},
		{"unauthorized", fmt.Errorf("tenant: %w", ErrUnauthorized), http.StatusUnauthorized},
		{"not found", NotFound("display", uuid.New()), http.StatusNotFound},
		{"unknown source", &UnknownSourceError{SourceUUID: uuid.New()}, http.StatusNotFound},
		{"duplicate", Duplicate("personal contact"), http.StatusConflict},
		{"auth down", ErrAuthUnreachable, http.StatusServiceUnavailable},
		{"bus down", ErrBusUnreachable, http.StatusServiceUnavailable},
		{"master tenant", ErrMasterTenantNotInitiated, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Status(tc.err))
		})
	}
}

func TestFieldErrorsErr(t *testing.T) {
	t.Parallel()

	fe := FieldErrors{}
	require.NoError(t, fe.Err())

	fe.Add("limit", "limit must be a non-negative integer")
	err := fe.Err()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidData)
	require.Contains(t, err.Error(), "limit")
}
