package hypernative

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// tokenServer fakes the authorization server's token endpoint and records the
// last form it received.
func tokenServer(t *testing.T) (*httptest.Server, *url.Values) {
	t.Helper()
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func newTestAuthenticator(tokenURL string) *Authenticator {
	return NewAuthenticator(OAuthConfig{
		ClientID:    "shield-client",
		AuthURL:     "https://auth.example/authorize",
		TokenURL:    tokenURL,
		RedirectURL: "https://app.example/callback",
	}, NewMemoryTokenStore())
}

func TestAuthenticator_BeginBuildsPKCEURL(t *testing.T) {
	a := newTestAuthenticator("https://auth.example/token")
	authURL, state := a.Begin("session-1")

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "auth.example", u.Host)
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "shield-client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, 1, a.PendingCount())

	a.mu.Lock()
	verifier := a.pending[state].verifier
	a.mu.Unlock()
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), q.Get("code_challenge"))
}

func TestAuthenticator_CompleteStoresToken(t *testing.T) {
	srv, form := tokenServer(t)
	a := newTestAuthenticator(srv.URL)
	_, state := a.Begin("session-1")

	a.mu.Lock()
	verifier := a.pending[state].verifier
	a.mu.Unlock()

	sessionID, tok, err := a.Complete(context.Background(), "session-1", state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "session-1", sessionID)
	assert.Equal(t, "at-123", tok.AccessToken)
	assert.True(t, tok.Valid())
	assert.Equal(t, verifier, form.Get("code_verifier"))
	assert.Equal(t, "shield-client", form.Get("client_id"))

	stored, err := ValidToken(context.Background(), a.Tokens(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer at-123", stored.Authorization())

	// States are single use.
	_, _, err = a.Complete(context.Background(), "session-1", state, "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, a.PendingCount())
}

func TestAuthenticator_ExchangeFailure(t *testing.T) {
	srv, _ := tokenServer(t)
	a := newTestAuthenticator(srv.URL)
	_, state := a.Begin("session-1")

	_, _, err := a.Complete(context.Background(), "session-1", state, "bad-code")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidState)

	_, err = ValidToken(context.Background(), a.Tokens(), "session-1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthenticator_CompleteRequiresStartingSession(t *testing.T) {
	srv, _ := tokenServer(t)
	a := newTestAuthenticator(srv.URL)

	for _, caller := range []string{"other-session", ""} {
		_, state := a.Begin("session-1")
		_, _, err := a.Complete(context.Background(), caller, state, "good-code")
		assert.ErrorIs(t, err, ErrInvalidState, "caller %q", caller)

		// The state is spent either way.
		_, _, err = a.Complete(context.Background(), "session-1", state, "good-code")
		assert.ErrorIs(t, err, ErrInvalidState)
	}

	for _, sid := range []string{"session-1", "other-session"} {
		_, err := ValidToken(context.Background(), a.Tokens(), sid)
		assert.ErrorIs(t, err, ErrNotAuthenticated, sid)
	}
}

func TestAuthenticator_ExpiredState(t *testing.T) {
	a := newTestAuthenticator("https://auth.example/token")
	start := time.Now()
	a.now = func() time.Time { return start }
	_, state := a.Begin("session-1")

	a.now = func() time.Time { return start.Add(PendingLoginTTL + time.Second) }
	_, _, err := a.Complete(context.Background(), "session-1", state, "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAuthenticator_SweepsExpired(t *testing.T) {
	a := newTestAuthenticator("https://auth.example/token")
	start := time.Now()
	a.now = func() time.Time { return start }
	a.Begin("s1")
	a.Begin("s2")

	a.now = func() time.Time { return start.Add(PendingLoginTTL + time.Minute) }
	a.Begin("s3")
	assert.Equal(t, 1, a.PendingCount())
}

func TestToken_Valid(t *testing.T) {
	var nilTok *Token
	assert.False(t, nilTok.Valid())
	assert.False(t, (&Token{}).Valid())
	assert.True(t, (&Token{AccessToken: "x"}).Valid(), "no expiry means valid")
	assert.True(t, (&Token{AccessToken: "x", Expiry: time.Now().Add(time.Hour)}).Valid())
	assert.False(t, (&Token{AccessToken: "x", Expiry: time.Now().Add(10 * time.Second)}).Valid(), "inside leeway")
	assert.False(t, (&Token{AccessToken: "x", Expiry: time.Now().Add(-time.Minute)}).Valid())
}

func TestValidToken_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	_, err := ValidToken(ctx, store, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = ValidToken(ctx, store, "missing")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, store.Set(ctx, "old", &Token{AccessToken: "x", Expiry: time.Now().Add(-time.Hour)}))
	_, err = ValidToken(ctx, store, "old")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, store.Delete(ctx, "old"))
	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
