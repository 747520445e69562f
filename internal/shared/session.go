package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager issues and resolves bearer-token sessions backed by Redis.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
}

// Session holds the authenticated subject for a request.
type Session struct {
	Token    string
	UserID   string
	IssuedAt time.Time
}

type sessionPayload struct {
	UserID   string    `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, ttl time.Duration) *SessionManager {
	return &SessionManager{client: client, ttl: ttl}
}

// Issue creates a new session token for the given user.
func (sm *SessionManager) Issue(ctx context.Context, userID string) (*Session, error) {
	sess := &Session{
		Token:    uuid.NewString(),
		UserID:   userID,
		IssuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(sessionPayload{UserID: sess.UserID, IssuedAt: sess.IssuedAt})
	if err != nil {
		return nil, err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.Token), data, sm.ttl).Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load resolves the session for a request. A request without a bearer token,
// or with a token that has expired, yields a nil session and no error.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, nil
	}
	return sm.Resolve(ctx, token)
}

// Resolve looks up a session by token.
func (sm *SessionManager) Resolve(ctx context.Context, token string) (*Session, error) {
	data, err := sm.client.Get(ctx, sm.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: stored.UserID, IssuedAt: stored.IssuedAt}, nil
}

// Revoke deletes a session token.
func (sm *SessionManager) Revoke(ctx context.Context, token string) error {
	if err := sm.client.Del(ctx, sm.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (sm *SessionManager) redisKey(token string) string {
	return "session:" + token
}
