package network

import (
	"net/http/cookiejar"
	"sync"
	"time"
)

// SessionCache keeps one cookie jar per router host so a login from an
// earlier call is reused by the next direct attempt
type SessionCache struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	jar       *cookiejar.Jar
	expiresAt time.Time
}

// NewSessionCache creates a cache whose jars expire ttl after their last login
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SessionCache{
		ttl:      ttl,
		sessions: make(map[string]*sessionEntry),
	}
}

// Jar returns the live jar for host, creating an empty one if needed
func (sc *SessionCache) Jar(host string) *cookiejar.Jar {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if e, ok := sc.sessions[host]; ok && time.Now().Before(e.expiresAt) {
		return e.jar
	}

	jar, _ := cookiejar.New(nil) // error is always nil
	sc.sessions[host] = &sessionEntry{jar: jar, expiresAt: time.Now().Add(sc.ttl)}
	return jar
}

// Touch extends host's jar after a successful login
func (sc *SessionCache) Touch(host string, jar *cookiejar.Jar) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.sessions[host] = &sessionEntry{jar: jar, expiresAt: time.Now().Add(sc.ttl)}
}

// Clear drops host's jar
func (sc *SessionCache) Clear(host string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.sessions, host)
}
