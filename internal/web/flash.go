package web

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

const sessionCookie = "vitalsup_session"

// flashStore holds one-shot banner messages per browser session.
type flashStore struct {
	mu       sync.Mutex
	messages map[string]string
}

func newFlashStore() *flashStore {
	return &flashStore{messages: make(map[string]string)}
}

// set stores a message for the session
func (f *flashStore) set(key, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[key] = message
}

// pop retrieves and immediately deletes a message
func (f *flashStore) pop(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	message, ok := f.messages[key]
	if ok {
		delete(f.messages, key)
		return message
	}
	return ""
}

// sessionKey returns the browser's session id, issuing a new cookie when
// the request carries none.
func (s *Server) sessionKey(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	key := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return key
}
