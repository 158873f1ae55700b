package service

import "sync"

// keyedMutex serializes work per key. Billing operations on one instance run
// one at a time so a read of a subscriber record and its write never interleave.
type keyedMutex struct {
	m sync.Map
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	v, _ := k.m.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

var instanceLocks keyedMutex
