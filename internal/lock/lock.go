// Package lock provides per-notification mutual exclusion for reminder workers.
//
// TryLock never blocks: when the id is already held it returns ErrLocked and
// the caller skips that notification for the current pass.
package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned by TryLock when another worker holds the id.
var ErrLocked = errors.New("notification is locked by another worker")

// Unlocker releases a lock obtained from TryLock.
type Unlocker interface {
	Unlock(ctx context.Context) error
}
