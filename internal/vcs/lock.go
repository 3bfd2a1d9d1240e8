package vcs

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// LockPolicy decides what a second caller does while a working copy is busy.
type LockPolicy string

// Lock policies.
const (
	// LockBlock waits, without timeout, until the working copy is free.
	LockBlock LockPolicy = "block"
	// LockFailFast returns core.ErrBusy immediately.
	LockFailFast LockPolicy = "fail-fast"
)

// ParseLockPolicy validates a policy name. The empty string selects LockBlock.
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch LockPolicy(s) {
	case "", LockBlock:
		return LockBlock, nil
	case LockFailFast:
		return LockFailFast, nil
	default:
		return "", fmt.Errorf("unknown lock policy %q (want %q or %q)", s, LockBlock, LockFailFast)
	}
}

// LockSet hands out one Lock per working copy path.
type LockSet struct {
	mu     sync.Mutex
	policy LockPolicy
	locks  map[string]*Lock
}

// NewLockSet creates a LockSet applying policy to every lock it returns.
func NewLockSet(policy LockPolicy) *LockSet {
	if policy == "" {
		policy = LockBlock
	}
	return &LockSet{
		policy: policy,
		locks:  make(map[string]*Lock),
	}
}

// For returns the lock guarding the working copy at path. Paths are
// cleaned and made absolute so aliases of one directory share a lock.
func (s *LockSet) For(path string) *Lock {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &Lock{path: key, policy: s.policy}
		s.locks[key] = l
	}
	return l
}

// Lock is the mutual-exclusion guard of a single working copy.
type Lock struct {
	mu     sync.Mutex
	path   string
	policy LockPolicy
}

// NewLock creates a standalone lock, mostly useful in tests.
func NewLock(path string, policy LockPolicy) *Lock {
	if policy == "" {
		policy = LockBlock
	}
	return &Lock{path: path, policy: policy}
}

// Acquire takes the lock according to its policy and returns the release
// function. Under LockFailFast it returns core.ErrBusy when already held.
func (l *Lock) Acquire() (func(), error) {
	if l.policy == LockFailFast {
		if !l.mu.TryLock() {
			return nil, core.WrapErrorf(core.ErrBusy, "working copy %s", l.path)
		}
		return l.mu.Unlock, nil
	}
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// Path returns the working copy path the lock guards.
func (l *Lock) Path() string {
	return l.path
}
