package database

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SessionManager tracks sessions handed out across multiple HTTP requests,
// the same way CursorManager tracks server-side cursors: a caller starts a
// session, performs a sequence of operations against it by ID, and either
// commits, aborts, or prepares it for a later finish by a different caller
// entirely.
type SessionManager struct {
	sessions map[string]*trackedSession
	timeout  time.Duration
	mu       sync.RWMutex
}

type trackedSession struct {
	session      *Session
	lastAccessed time.Time
}

// NewSessionManager returns a SessionManager whose sessions are reclaimed
// after timeout of inactivity if neither committed, aborted, nor prepared.
func NewSessionManager(timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &SessionManager{
		sessions: make(map[string]*trackedSession),
		timeout:  timeout,
	}
}

// Start begins a new session against db and registers it under a freshly
// generated ID.
func (sm *SessionManager) Start(db *Database) (string, *Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", nil, fmt.Errorf("generate session id: %w", err)
	}

	session := db.StartSession()

	sm.mu.Lock()
	sm.sessions[id] = &trackedSession{session: session, lastAccessed: time.Now()}
	sm.mu.Unlock()

	return id, session, nil
}

// Get retrieves a session by ID, refreshing its idle timer.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	tracked, exists := sm.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	tracked.lastAccessed = time.Now()
	return tracked.session, nil
}

// Release drops a session from tracking, once it has been committed,
// aborted, or handed off to pkg/twophase via PrepareTransaction.
func (sm *SessionManager) Release(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// CleanupIdleSessions aborts and discards sessions idle past the
// manager's timeout, so an abandoned session does not hold its locks and
// write set open forever.
func (sm *SessionManager) CleanupIdleSessions() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	removed := 0
	for id, tracked := range sm.sessions {
		if time.Since(tracked.lastAccessed) > sm.timeout {
			tracked.session.AbortTransaction()
			delete(sm.sessions, id)
			removed++
		}
	}
	return removed
}

func generateSessionID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
