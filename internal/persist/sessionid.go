package persist

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	lastMu   sync.Mutex
	lastUnix int64
)

// NewSessionID returns a monotonically non-decreasing, time-derived token
// with per-second resolution (§4.6). Two sessions started within the same
// second get distinct ids by falling back to a uuid suffix, preserving
// monotonicity via lastUnix never moving backward.
func NewSessionID() string {
	lastMu.Lock()
	defer lastMu.Unlock()

	now := time.Now().Unix()
	if now <= lastUnix {
		now = lastUnix
		return fmt.Sprintf("%d-%s", now, uuid.New().String()[:8])
	}
	lastUnix = now
	return fmt.Sprintf("%d", now)
}
