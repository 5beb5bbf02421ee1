package agent

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LockLabelPrefix namespaces lock labels in the shared tracker label store.
const LockLabelPrefix = "agent:"

// Identity names one agent process. It is generated once at startup and
// distinguishes concurrently running instances as well as restarts of the
// same instance.
type Identity string

// NewIdentity builds a process-scoped identity from the host name, pid,
// start time and a random suffix.
func NewIdentity() Identity {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return Identity(fmt.Sprintf("%s-%d-%d-%s", host, os.Getpid(), time.Now().Unix(), suffix))
}

// LockLabel returns the lock label name for this identity.
func (id Identity) LockLabel() string {
	return LockLabelPrefix + string(id)
}

// IsLockLabel reports whether a label name is any agent's lock label.
func IsLockLabel(name string) bool {
	return strings.HasPrefix(name, LockLabelPrefix)
}

// OwnsLabel reports whether a lock label belongs to this identity.
func (id Identity) OwnsLabel(name string) bool {
	return name == id.LockLabel()
}
