package realtime

import (
	"errors"
	"learnbridge_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = ParseFilter("student_id=eq.42")
	require.NoError(t, err)
	assert.Equal(t, "student_id", f.Column)
	assert.Equal(t, OpEq, f.Op)
	assert.Equal(t, "42", f.Value)
	assert.Equal(t, "student_id=eq.42", f.String())

	f, err = ParseFilter("module_type=in.(dyslexia, dysgraphia)")
	require.NoError(t, err)
	assert.Equal(t, []string{"dyslexia", "dysgraphia"}, f.Values)
	assert.Equal(t, "module_type=in.(dyslexia,dysgraphia)", f.String())

	for _, bad := range []string{"student_id", "=eq.1", "student_id=eq", "student_id=eq.", "student_id=like.1", "id=in.()"} {
		_, err := ParseFilter(bad)
		assert.True(t, errors.Is(err, util.ErrInvalidFilter), bad)
	}
}

func TestFilterMatch(t *testing.T) {
	record := map[string]interface{}{
		"student_id":  float64(7),
		"module_type": "dyslexia",
		"percentage":  float64(80),
	}

	cases := []struct {
		filter string
		want   bool
	}{
		{"student_id=eq.7", true},
		{"student_id=eq.8", false},
		{"student_id=neq.8", true},
		{"percentage=gt.79", true},
		{"percentage=gt.80", false},
		{"percentage=gte.80", true},
		{"percentage=lt.50", false},
		{"percentage=lte.80", true},
		{"module_type=in.(dyscalculia,dyslexia)", true},
		{"module_type=in.(dyscalculia)", false},
		{"missing=eq.1", false},
	}
	for _, tc := range cases {
		f, err := ParseFilter(tc.filter)
		require.NoError(t, err)
		assert.Equal(t, tc.want, f.Match(record), tc.filter)
	}

	var none *Filter
	assert.True(t, none.Match(record))
}
