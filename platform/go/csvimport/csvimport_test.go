package csvimport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
)

func TestParsePartialFailure(t *testing.T) {
	t.Parallel()

	body := "firstname,lastname\nalice,aldertion\ni,love,commas,,,,,,,,,,,,\nbob,bodkartan\n"

	result, err := Read([]byte(body), "text/csv; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, []string{"firstname", "lastname"}, result.Header)

	require.Len(t, result.Rows, 2)
	require.Equal(t, 2, result.Rows[0].Line)
	require.Equal(t, map[string]string{"firstname": "alice", "lastname": "aldertion"}, result.Rows[0].Fields)
	require.Equal(t, 4, result.Rows[1].Line)
	require.Equal(t, map[string]string{"firstname": "bob", "lastname": "bodkartan"}, result.Rows[1].Fields)

	require.Len(t, result.Failed, 1)
	require.Equal(t, 3, result.Failed[0].Line)
	require.Equal(t, 2, result.Failed[0].Details["expected"])
	require.Equal(t, 15, result.Failed[0].Details["got"])
}

func TestParseSkipsLeadingBlankLines(t *testing.T) {
	t.Parallel()

	result, err := Parse("\n\nfirstname\nalice\n")
	require.NoError(t, err)
	require.Equal(t, []string{"firstname"}, result.Header)
	require.Len(t, result.Rows, 1)
	require.Equal(t, 4, result.Rows[0].Line)
}

func TestParseRejectsEmptyAndHeaderOnly(t *testing.T) {
	t.Parallel()

	_, err := Parse("")
	require.ErrorIs(t, err, apperr.ErrInvalidData)

	_, err = Parse("firstname,lastname\n")
	require.ErrorIs(t, err, apperr.ErrInvalidData)
}

func TestParseRejectsEmptyHeaderCell(t *testing.T) {
	t.Parallel()

	_, err := Parse("firstname,,lastname\na,b,c\n")
	require.ErrorIs(t, err, apperr.ErrInvalidData)
}

func TestDecodeCharsets(t *testing.T) {
	t.Parallel()

	latin1, err := charmap.ISO8859_1.NewEncoder().String("firstname\nHélène\n")
	require.NoError(t, err)

	text, err := Decode([]byte(latin1), "text/csv; charset=iso-8859-1")
	require.NoError(t, err)
	require.Equal(t, "firstname\nHélène\n", text)

	_, err = Decode([]byte(latin1), "text/csv")
	require.ErrorIs(t, err, apperr.ErrInvalidData)

	_, err = Decode([]byte("a\n"), "text/csv; charset=klingon")
	require.ErrorIs(t, err, apperr.ErrInvalidData)

	text, err = Decode([]byte("\xef\xbb\xbffirstname\n"), "")
	require.NoError(t, err)
	require.Equal(t, "firstname\n", text)
}

func TestMergeFailuresOrdersByLine(t *testing.T) {
	t.Parallel()

	got := MergeFailures([]Failure{{Line: 5}, {Line: 2}}, nil, []Failure{{Line: 3}})
	require.Equal(t, []int{2, 3, 5}, []int{got[0].Line, got[1].Line, got[2].Line})
	require.NotNil(t, MergeFailures())
}
