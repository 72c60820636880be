package hypernative

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/mbd888/safeshield/internal/idgen"
	"github.com/mbd888/safeshield/internal/metrics"
)

// PendingLoginTTL bounds how long a started login can be completed.
const PendingLoginTTL = 10 * time.Minute

// ErrInvalidState is returned for a callback whose state is unknown, expired,
// or was started by a different session.
var ErrInvalidState = errors.New("hypernative: unknown or expired login state")

// OAuthConfig holds the authorization server settings.
type OAuthConfig struct {
	ClientID    string
	AuthURL     string
	TokenURL    string
	RedirectURL string
	Scopes      []string
}

type pendingLogin struct {
	sessionID string
	verifier  string
	createdAt time.Time
}

// Authenticator runs the authorization-code flow with PKCE and stores the
// resulting tokens per session.
type Authenticator struct {
	cfg    *oauth2.Config
	tokens TokenStore

	mu      sync.Mutex
	pending map[string]pendingLogin // state -> login
	now     func() time.Time
}

// NewAuthenticator creates an authenticator. The client is public, so no
// secret is configured.
func NewAuthenticator(cfg OAuthConfig, tokens TokenStore) *Authenticator {
	return &Authenticator{
		cfg: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		tokens:  tokens,
		pending: make(map[string]pendingLogin),
		now:     time.Now,
	}
}

// Tokens returns the token store.
func (a *Authenticator) Tokens() TokenStore {
	return a.tokens
}

// Begin starts a login for sessionID and returns the URL to send the user to
// together with the state value that will come back on the callback.
func (a *Authenticator) Begin(sessionID string) (authURL, state string) {
	state = idgen.New()
	verifier := oauth2.GenerateVerifier()

	a.mu.Lock()
	a.sweepLocked()
	a.pending[state] = pendingLogin{sessionID: sessionID, verifier: verifier, createdAt: a.now()}
	metrics.PendingLogins.Set(float64(len(a.pending)))
	a.mu.Unlock()

	return a.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), state
}

// Complete exchanges the authorization code, stores the token and returns
// the session it belongs to. sessionID is the session presenting the
// callback and must be the one that called Begin. A state is usable once,
// even when the session does not match.
func (a *Authenticator) Complete(ctx context.Context, sessionID, state, code string) (string, *Token, error) {
	a.mu.Lock()
	login, ok := a.pending[state]
	delete(a.pending, state)
	a.sweepLocked()
	metrics.PendingLogins.Set(float64(len(a.pending)))
	a.mu.Unlock()

	if !ok || a.now().Sub(login.createdAt) > PendingLoginTTL {
		return "", nil, ErrInvalidState
	}
	if sessionID == "" || subtle.ConstantTimeCompare([]byte(sessionID), []byte(login.sessionID)) != 1 {
		return "", nil, ErrInvalidState
	}

	oauthTok, err := a.cfg.Exchange(ctx, code, oauth2.VerifierOption(login.verifier))
	if err != nil {
		return "", nil, fmt.Errorf("hypernative: exchange code: %w", err)
	}

	tok := FromOAuth2(oauthTok)
	if err := a.tokens.Set(ctx, login.sessionID, tok); err != nil {
		return "", nil, err
	}
	return login.sessionID, tok, nil
}

// Logout forgets the session's token.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) error {
	return a.tokens.Delete(ctx, sessionID)
}

// PendingCount returns the number of logins awaiting a callback.
func (a *Authenticator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// sweepLocked drops expired logins. Caller must hold a.mu.
func (a *Authenticator) sweepLocked() {
	now := a.now()
	for state, login := range a.pending {
		if now.Sub(login.createdAt) > PendingLoginTTL {
			delete(a.pending, state)
		}
	}
}
