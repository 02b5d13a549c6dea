package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "propdesk:sess:"

// Session is the per-request session state. Mutations mark it dirty; the
// manager only writes dirty sessions back to redis on commit.
type Session struct {
	ID string

	userID    string
	values    map[string]string
	fresh     bool
	dirty     bool
	destroyed bool
}

// SetUser binds the session to a user id.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the bound user id, empty for anonymous sessions.
func (s *Session) User() string {
	return s.userID
}

// Set stores an arbitrary string value under key.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value
	s.dirty = true
}

// Get returns the value under key, empty when absent.
func (s *Session) Get(key string) string {
	return s.values[key]
}

// Delete removes the value under key.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// sessionRecord is the redis representation of a session.
type sessionRecord struct {
	UserID string            `json:"user_id"`
	Values map[string]string `json:"values"`
}

// SessionManager implements cookie sessions with redis storage. The cookie
// carries only the opaque session id; all state lives server side.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	secret     []byte
	ttl        time.Duration
	secure     bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		secret:     []byte(secret),
		ttl:        ttl,
		secure:     secure,
	}
}

// CookieName returns the session cookie name.
func (sm *SessionManager) CookieName() string { return sm.cookieName }

// TTL returns the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration { return sm.ttl }

// Load resolves the request's session. A missing cookie or an expired redis
// record yields a fresh session rather than an error; only transport
// failures propagate.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.fresh(), nil
		}
		return nil, err
	}

	raw, err := sm.client.Get(ctx, sessionKeyPrefix+cookie.Value).Bytes()
	if errors.Is(err, redis.Nil) {
		sess := sm.fresh()
		sess.ID = cookie.Value
		return sess, nil
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &Session{
		ID:     cookie.Value,
		userID: rec.UserID,
		values: rec.Values,
	}, nil
}

// Commit writes the session to redis and sets the cookie. Destroyed sessions
// are deleted and the cookie cleared. Must run before the response body.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sessionKeyPrefix+sess.ID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sm.setCookie(w, "", -1)
		return nil
	}

	if sess.ID == "" {
		sess.ID = sm.newSessionID()
	}

	if sess.dirty || sess.fresh {
		raw, err := json.Marshal(sessionRecord{UserID: sess.userID, Values: sess.values})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sessionKeyPrefix+sess.ID, raw, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.fresh = false
	}

	sm.setCookie(w, sess.ID, 0)
	return nil
}

// Destroy marks the session for deletion on the next commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.destroyed = true
	}
}

func (sm *SessionManager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge == 0 {
		cookie.Expires = time.Now().Add(sm.ttl)
	}
	http.SetCookie(w, cookie)
}

func (sm *SessionManager) fresh() *Session {
	return &Session{
		ID:     sm.newSessionID(),
		values: map[string]string{},
		fresh:  true,
		dirty:  true,
	}
}

func (sm *SessionManager) newSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}
