//go:build deadlock

package ds

import "github.com/sasha-s/go-deadlock"

// Built with -tags deadlock, bucket and cell locks report lock-order inversions and
// recursive locking, e.g. an Update transform calling back into the same map.
type rwMutex = deadlock.RWMutex
