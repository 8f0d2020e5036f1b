//go:build !deadlock
// +build !deadlock

// Package sync wraps the standard mutexes so that the deadlock build tag can
// swap in go-deadlock without touching callers.
package sync

import "sync"

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	sync.Mutex
}

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	sync.RWMutex
}
