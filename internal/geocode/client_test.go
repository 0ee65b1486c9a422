package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		Endpoint:  srv.URL + "/search",
		UserAgent: "Emerald-Test/1.0",
		Interval:  time.Millisecond,
	}, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGeocode_Success(t *testing.T) {
	var observed time.Duration
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Lawrence, KS", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "Emerald-Test/1.0", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"38.9717","lon":"-95.2353","display_name":"Lawrence"}]`))
	})
	c.OnLatency(func(d time.Duration) { observed = d })

	p, err := c.Geocode(context.Background(), "  Lawrence, KS ")

	require.NoError(t, err)
	assert.InDelta(t, 38.9717, p.Latitude, 1e-9)
	assert.InDelta(t, -95.2353, p.Longitude, 1e-9)
	assert.Greater(t, observed, time.Duration(0))
}

func TestGeocode_FallsBackToShorterAddress(t *testing.T) {
	var queries []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		queries = append(queries, q)
		if q == "Lawrence" {
			_, _ = w.Write([]byte(`[{"lat":"38.97","lon":"-95.23"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	p, err := c.Geocode(context.Background(), "Lawrence, 1 Nowhere Street, Apt 9")

	require.NoError(t, err)
	assert.InDelta(t, 38.97, p.Latitude, 1e-9)
	assert.Equal(t, []string{"Lawrence, 1 Nowhere Street, Apt 9", "Lawrence, 1 Nowhere Street", "Lawrence"}, queries)
}

func TestGeocode_NoResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.Geocode(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestGeocode_EmptyAddress(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})

	_, err := c.Geocode(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Zero(t, calls.Load())
}

func TestGeocode_ErrorStatus_DoesNotFallBack(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Geocode(context.Background(), "a, b, c")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoResult))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeocode_InvalidCoordinates(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"non numeric latitude", `[{"lat":"north","lon":"1"}]`},
		{"non numeric longitude", `[{"lat":"1","lon":"west"}]`},
		{"out of range", `[{"lat":"91","lon":"0"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Geocode(context.Background(), "somewhere")
			assert.ErrorIs(t, err, ErrInvalidCoordinates)
		})
	}
}

func TestGeocode_MalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"`))
	})
	_, err := c.Geocode(context.Background(), "somewhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestGeocode_ContextCanceledWhileWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Interval: time.Hour}, srv.Client(), nil)

	// 1回目でバーストを消費する
	_, _ = c.Geocode(context.Background(), "first")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Geocode(ctx, "second")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limit"))
}

func TestAddressFallbacks(t *testing.T) {
	assert.Equal(t, []string{"a, b, c", "a, b", "a"}, addressFallbacks("a,b , c"))
	assert.Equal(t, []string{"single"}, addressFallbacks("single"))
	assert.Equal(t, []string{"x, y", "x"}, addressFallbacks("x, , y"))
	assert.Empty(t, addressFallbacks(" , "))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{}, nil, nil)
	assert.Equal(t, DefaultEndpoint, c.endpoint)
	assert.NotNil(t, c.httpClient)
	assert.NotNil(t, c.logger)
}
