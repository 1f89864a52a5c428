//go:build !deadlock

package ds

import "sync"

type rwMutex = sync.RWMutex
