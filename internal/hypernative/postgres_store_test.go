//go:build integration

package hypernative

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/safeshield/internal/testutil"
)

func TestPostgresTokenStore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresTokenStore(db)

	_, err := s.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	require.NoError(t, s.Set(ctx, "s1", &Token{AccessToken: "a", TokenType: "Bearer", Expiry: exp}))
	require.NoError(t, s.Set(ctx, "s1", &Token{AccessToken: "b", TokenType: "Bearer", Expiry: exp}))

	tok, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b", tok.AccessToken)
	assert.True(t, tok.Expiry.Equal(exp))

	require.NoError(t, s.Set(ctx, "old", &Token{AccessToken: "c", Expiry: time.Now().Add(-time.Hour)}))
	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = ValidToken(ctx, s, "s1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
