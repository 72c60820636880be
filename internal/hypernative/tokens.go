package hypernative

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNotAuthenticated means no usable token exists for the session.
	ErrNotAuthenticated = errors.New("hypernative: not authenticated")
	ErrTokenNotFound    = errors.New("hypernative: token not found")
)

// expiryLeeway treats tokens about to expire as expired.
const expiryLeeway = 30 * time.Second

// Token is a stored bearer token.
type Token struct {
	AccessToken string    `json:"-"`
	TokenType   string    `json:"tokenType"`
	Expiry      time.Time `json:"expiresAt,omitempty"`
}

// Valid reports whether the token can still be used.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || time.Now().Add(expiryLeeway).Before(t.Expiry)
}

// Authorization returns the Authorization header value.
func (t *Token) Authorization() string {
	typ := t.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return typ + " " + t.AccessToken
}

// FromOAuth2 converts an exchanged oauth2 token.
func FromOAuth2(tok *oauth2.Token) *Token {
	if tok == nil {
		return nil
	}
	return &Token{AccessToken: tok.AccessToken, TokenType: tok.Type(), Expiry: tok.Expiry}
}

// TokenStore keeps tokens per browser session.
type TokenStore interface {
	Get(ctx context.Context, sessionID string) (*Token, error)
	Set(ctx context.Context, sessionID string, tok *Token) error
	Delete(ctx context.Context, sessionID string) error
}

// ValidToken loads the session's token, failing with ErrNotAuthenticated when
// it is missing or expired.
func ValidToken(ctx context.Context, store TokenStore, sessionID string) (*Token, error) {
	if sessionID == "" {
		return nil, ErrNotAuthenticated
	}
	tok, err := store.Get(ctx, sessionID)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, err
	}
	if !tok.Valid() {
		return nil, ErrNotAuthenticated
	}
	return tok, nil
}

// MemoryTokenStore is an in-memory TokenStore.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryTokenStore creates an empty token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]Token)}
}

var _ TokenStore = (*MemoryTokenStore)(nil)

func (m *MemoryTokenStore) Get(_ context.Context, sessionID string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[sessionID]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &tok, nil
}

func (m *MemoryTokenStore) Set(_ context.Context, sessionID string, tok *Token) error {
	if tok == nil {
		return errors.New("hypernative: nil token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[sessionID] = *tok
	return nil
}

func (m *MemoryTokenStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sessionID)
	return nil
}
