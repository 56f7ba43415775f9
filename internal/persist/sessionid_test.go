package persist

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewSessionIDMonotonic exercises §4.6: sessionID is a monotonically
// non-decreasing time-derived token. Two ids requested back to back never
// compare as going backward.
func TestNewSessionIDMonotonic(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()

	aSeconds := firstInt(t, a)
	bSeconds := firstInt(t, b)
	assert.GreaterOrEqual(t, bSeconds, aSeconds)

	if aSeconds == bSeconds {
		assert.NotEqual(t, a, b, "same-second ids must still be distinct")
	}
}

func firstInt(t *testing.T, id string) int64 {
	t.Helper()
	part := strings.SplitN(id, "-", 2)[0]
	n, err := strconv.ParseInt(part, 10, 64)
	require.NoError(t, err)
	return n
}
