package hypernative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/safeshield/internal/analysis"
)

var validToken = &Token{AccessToken: "at-123", TokenType: "Bearer"}

func testTx() TxRequest {
	return TxRequest{
		ChainID:     "1",
		SafeAddress: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		Transaction: analysis.Transaction{
			To:        "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
			Value:     "1000",
			Data:      "0x",
			Operation: analysis.OperationCall,
		},
	}
}

func newAssessServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestClient_AssessSuccess(t *testing.T) {
	var got assessmentRequest
	var gotAuth, gotPath string
	c := newAssessServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"status":"OK","assessmentData":{"recommendation":"accept","findings":{}}}`))
	})

	a, err := c.Assess(context.Background(), validToken, testTx())
	require.NoError(t, err)
	assert.IsType(t, &Success{}, a)

	assert.Equal(t, "/safe/transaction/assessment", gotPath)
	assert.Equal(t, "Bearer at-123", gotAuth)
	assert.Equal(t, testSafe, got.SafeAddress)
	assert.Equal(t, "1000", got.Value)
	assert.Equal(t, "1", got.Chain)
}

func TestClient_FailureEnvelopeIsNotAnError(t *testing.T) {
	c := newAssessServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"FAILED","error":{"reason":"UNSUPPORTED","message":"Chain not supported"}}`))
	})

	a, err := c.Assess(context.Background(), validToken, testTx())
	require.NoError(t, err)
	f, ok := a.(*Failure)
	require.True(t, ok)
	assert.Equal(t, "Chain not supported", f.Message)
}

func TestClient_Unauthorized(t *testing.T) {
	var calls atomic.Int32
	c := newAssessServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Assess(context.Background(), validToken, testTx())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_InvalidTokenSkipsCall(t *testing.T) {
	var calls atomic.Int32
	c := newAssessServer(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := c.Assess(context.Background(), &Token{}, testTx())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, calls.Load())
}

func TestClient_ServerErrorRetriedThenReturned(t *testing.T) {
	var calls atomic.Int32
	c := newAssessServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	})

	_, err := c.Assess(context.Background(), validToken, testTx())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
	assert.Equal(t, int32(2), calls.Load())
}
