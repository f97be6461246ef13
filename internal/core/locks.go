package core

import (
	"fmt"
	"strings"
	"sync"

	"github.com/veselov/meetsync/internal/domain"
)

// TrackLockKey serializes handlers for one logical track.
func TrackLockKey(id domain.ParticipantID, kind domain.TrackKind, source domain.TrackSource) string {
	return fmt.Sprintf("%s|%s|%s", id, kind, source)
}

// SyncLockKey serializes whole-participant operations.
func SyncLockKey(id domain.ParticipantID) string {
	return fmt.Sprintf("%s|sync", id)
}

// LockTable tracks in-flight operations. Acquire is non-blocking: a second
// concurrent handler for the same key is dropped, on the assumption that the
// in-flight one reads live publication fields and already reflects the
// latest state.
type LockTable struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewLockTable() *LockTable {
	return &LockTable{inFlight: make(map[string]struct{})}
}

func (l *LockTable) Acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.inFlight[key]; held {
		return false
	}
	l.inFlight[key] = struct{}{}
	return true
}

func (l *LockTable) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, key)
}

// ReleaseParticipant drops every lock belonging to a removed participant.
func (l *LockTable) ReleaseParticipant(id domain.ParticipantID) {
	prefix := string(id) + "|"
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.inFlight {
		if strings.HasPrefix(key, prefix) {
			delete(l.inFlight, key)
		}
	}
}

// ReleaseAll clears the table during teardown.
func (l *LockTable) ReleaseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight = make(map[string]struct{})
}

func (l *LockTable) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.inFlight[key]
	return held
}
