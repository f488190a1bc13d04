package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeScorerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/edge/predict", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req edgeReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(edgeResp{ProbaUp: 0.7, Regime: req.Symbol, Confidence: 0.6})
	}))
	defer srv.Close()

	s := NewHTTPEdgeScorer(NewHTTPServiceBase(srv.URL, time.Second))
	score, err := s.Score(context.Background(), "BTCUSDT", map[string]float64{"trend": 1.2})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "BTCUSDT", score.Symbol)
	assert.Equal(t, 0.7, score.ProbaUp)
	assert.Equal(t, "BTCUSDT", score.Regime)
}

func TestEdgeScorerDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewHTTPEdgeScorer(NewHTTPServiceBase(srv.URL, time.Second)).Score(context.Background(), "BTCUSDT", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEdgeScorerRejectsOutOfRangeProbability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"proba_up":1.4}`))
	}))
	defer srv.Close()

	_, err := NewHTTPEdgeScorer(NewHTTPServiceBase(srv.URL, time.Second)).Score(context.Background(), "BTCUSDT", nil)
	assert.ErrorContains(t, err, "out of range")
}

func TestServiceBaseNotConfigured(t *testing.T) {
	err := NewHTTPServiceBase("", 0).PostJSON(context.Background(), "/x", nil, nil)
	assert.True(t, errors.Is(err, errNotConfigured))
}
