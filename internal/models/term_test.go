package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentTerm(t *testing.T) {
	assert.Equal(t, Term{Year: 2025, Semester: 1}, CurrentTerm(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Term{Year: 2025, Semester: 1}, CurrentTerm(time.Date(2025, time.June, 30, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, Term{Year: 2025, Semester: 2}, CurrentTerm(time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseTerm(t *testing.T) {
	term, err := ParseTerm("2025.2")
	require.NoError(t, err)
	assert.Equal(t, Term{Year: 2025, Semester: 2}, term)
	assert.Equal(t, "2025.2", term.String())

	for _, raw := range []string{"", "2025", "2025.3", "abc.1", "2025.x"} {
		_, err := ParseTerm(raw)
		assert.Error(t, err, raw)
	}
}
