package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAndEvalSimpleExpression(t *testing.T) {
	f, err := Compile("round(d) + b - r")
	require.NoError(t, err)

	result, err := f.Eval(Vars{D: 10.4, B: 3, R: 1})
	require.NoError(t, err)
	assert.Equal(t, 12, result)
}

func TestCompileAllowedFunctions(t *testing.T) {
	f, err := Compile("max(float(b), abs(d)) + pow(2, 1) - int(min(1.0, 2.0))")
	require.NoError(t, err)
	_, err = f.Eval(Vars{D: -5, B: 2})
	require.NoError(t, err)
}

// TestCompileRejectsForbiddenIdentifier exercises §8: a formula
// referencing a forbidden name fails to load before the session starts.
func TestCompileRejectsForbiddenIdentifier(t *testing.T) {
	_, err := Compile("os.Exit(1)")
	assert.Error(t, err)

	_, err = Compile("g + unknownVar")
	assert.Error(t, err)
}
