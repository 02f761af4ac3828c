package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// ServerName builds an instance name such as "rpc-01hx..." used in the
// response envelope when no explicit name is configured.
func ServerName(prefix string) string {
	if prefix == "" {
		prefix = "rpc"
	}
	return prefix + "-" + strings.ToLower(CreateULID())
}
