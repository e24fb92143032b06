package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
)

const maxBodyBytes = 10 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// DecodeJSON reads the request body into dst and runs struct validation.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Invalid("body", "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("body", "request body is required")
		}
		return apperr.Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return Validate(dst)
}

// ReadBody reads a raw upload such as a CSV import, bounded in size.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, apperr.Invalid("body", "request body is required")
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Invalid("body", "request body is too large or unreadable")
	}
	return body, nil
}

// Validate runs the `validate` struct tags of v and reports failures per
// field. Values that are not structs pass unchecked.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// not a struct, nothing to validate
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("body", err.Error())
	}
	fields := apperr.FieldErrors{}
	for _, fe := range verrs {
		fields.Add(jsonPath(fe), describe(fe))
	}
	return fields.Err()
}

func jsonPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " element(s) or characters"
	case "max":
		return "must have at most " + fe.Param() + " element(s) or characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// PathUUID parses the chi-extracted path parameter value named name.
func PathUUID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Invalid(name, "must be a uuid")
	}
	return id, nil
}

// ListQuery are the common listing query parameters.
type ListQuery struct {
	Search    string
	Order     string
	Direction string
	Limit     *int
	Offset    int
	Recurse   bool
}

// ParseListQuery reads search, order, direction, limit, offset and recurse.
func ParseListQuery(r *http.Request) (ListQuery, error) {
	q := r.URL.Query()
	out := ListQuery{
		Search:    q.Get("search"),
		Order:     q.Get("order"),
		Direction: q.Get("direction"),
	}
	fields := apperr.FieldErrors{}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields.Add("limit", "must be a positive integer")
		} else {
			out.Limit = &n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields.Add("offset", "must be a positive integer")
		} else {
			out.Offset = n
		}
	}
	if raw := q.Get("recurse"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			fields.Add("recurse", "must be a boolean")
		} else {
			out.Recurse = b
		}
	}
	if err := fields.Err(); err != nil {
		return ListQuery{}, err
	}
	return out, nil
}

// Page is the listing response body.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Filtered int `json:"filtered"`
}
