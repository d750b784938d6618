package lametric

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, candidates ...string) *Client {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	c := NewClient("device.test", "secret-key", false, logger)
	if len(candidates) > 0 {
		c.candidates = candidates
	}
	return c
}

// discoveryServer serves a /api/v2 endpoint map plus any extra handlers.
func discoveryServer(t *testing.T, endpoints map[string]string, extra func(mux *http.ServeMux, base func() string)) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/api/v2", func(w http.ResponseWriter, r *http.Request) {
		resolved := make(map[string]string, len(endpoints))
		for name, path := range endpoints {
			resolved[name] = server.URL + path
		}
		json.NewEncoder(w).Encode(map[string]any{
			"api_version": "2.3.0",
			"endpoints":   resolved,
		})
	})
	if extra != nil {
		extra(mux, func() string { return server.URL })
	}
	return server
}

func TestResolveEndpoints(t *testing.T) {
	t.Run("first candidate returning a JSON object wins", func(t *testing.T) {
		good := discoveryServer(t, map[string]string{"device_url": "/api/v2/device"}, nil)

		// A later candidate that is also alive must not be chosen.
		alsoGood := discoveryServer(t, nil, nil)

		client := newTestClient(t,
			"http://127.0.0.1:1", // connection refused
			good.URL,
			alsoGood.URL,
		)

		eps, err := client.ResolveEndpoints(context.Background())
		require.NoError(t, err)
		assert.Equal(t, good.URL, eps.BaseURL)
		assert.Equal(t, "2.3.0", eps.APIVersion)
		assert.Equal(t, good.URL+"/api/v2/device", eps.Endpoints["device_url"])
	})

	t.Run("object without endpoints key is accepted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"api_version": "2.1.0"})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		eps, err := client.ResolveEndpoints(context.Background())
		require.NoError(t, err)
		assert.Equal(t, server.URL, eps.BaseURL)
		assert.Empty(t, eps.Endpoints)
	})

	t.Run("non-object JSON is skipped", func(t *testing.T) {
		arrayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]string{"not", "an", "object"})
		}))
		defer arrayServer.Close()

		good := discoveryServer(t, nil, nil)

		client := newTestClient(t, arrayServer.URL, good.URL)

		eps, err := client.ResolveEndpoints(context.Background())
		require.NoError(t, err)
		assert.Equal(t, good.URL, eps.BaseURL)
	})

	t.Run("all candidates failing yields DiscoveryError", func(t *testing.T) {
		client := newTestClient(t, "http://127.0.0.1:1", "http://127.0.0.1:2")

		_, err := client.ResolveEndpoints(context.Background())
		require.Error(t, err)

		var discErr *DiscoveryError
		require.ErrorAs(t, err, &discErr)
		assert.Equal(t, "device.test", discErr.Host)
		assert.Error(t, discErr.LastErr)
	})
}

func TestEnsureEndpoints(t *testing.T) {
	var discoveryCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		discoveryCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"endpoints": map[string]any{}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	first, err := client.EnsureEndpoints(context.Background())
	require.NoError(t, err)

	second, err := client.EnsureEndpoints(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), discoveryCalls.Load(), "discovery must run exactly once")
}

func TestAuthentication(t *testing.T) {
	var gotUser, gotPass string
	var gotAccept string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		gotAccept = r.Header.Get("Accept")
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.ResolveEndpoints(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "dev", gotUser)
	assert.Equal(t, "secret-key", gotPass)
	assert.Equal(t, "application/json", gotAccept)
}

func TestHTTPError(t *testing.T) {
	t.Run("401 is an auth error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v2", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{})
		})
		mux.HandleFunc("/api/v2/device", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.GetDevice(context.Background())
		require.Error(t, err)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
		assert.True(t, IsAuthError(err))
	})

	t.Run("500 is not an auth error", func(t *testing.T) {
		err := error(&HTTPError{StatusCode: 500, Status: "500 Internal Server Error", URL: "http://x"})
		assert.False(t, IsAuthError(err))
	})
}

func TestGetDevice(t *testing.T) {
	t.Run("returns the status object", func(t *testing.T) {
		server := discoveryServer(t, map[string]string{"device_url": "/api/v2/device"}, func(mux *http.ServeMux, base func() string) {
			mux.HandleFunc("/api/v2/device", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"serial_number": "SA123",
					"wifi":          map[string]any{"strength": 84},
				})
			})
		})

		client := newTestClient(t, server.URL)

		snap, err := client.GetDevice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "SA123", snap["serial_number"])
	})

	t.Run("non-object body yields ShapeError", func(t *testing.T) {
		server := discoveryServer(t, map[string]string{"device_url": "/api/v2/device"}, func(mux *http.ServeMux, base func() string) {
			mux.HandleFunc("/api/v2/device", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode([]int{1, 2, 3})
			})
		})

		client := newTestClient(t, server.URL)

		_, err := client.GetDevice(context.Background())
		var shapeErr *ShapeError
		require.ErrorAs(t, err, &shapeErr)
	})
}

func TestEndpointFallback(t *testing.T) {
	// Endpoint map deliberately lacks notifications_url; DismissAll must
	// fall back to the default path on the discovered base URL.
	var dismissed atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"endpoints": map[string]any{}})
	})
	mux.HandleFunc("/api/v2/device/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			dismissed.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)

	require.NoError(t, client.DismissAll(context.Background()))
	assert.True(t, dismissed.Load())
}

func TestPostNotification(t *testing.T) {
	var received Notification

	server := discoveryServer(t, map[string]string{"notifications_url": "/api/v2/device/notifications"}, func(mux *http.ServeMux, base func() string) {
		mux.HandleFunc("/api/v2/device/notifications", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			json.NewEncoder(w).Encode(map[string]any{"success": map[string]any{"id": "42"}})
		})
	})

	client := newTestClient(t, server.URL)

	resp, err := client.PostNotification(context.Background(), Notification{
		Priority: "info",
		IconType: "info",
		Model: Model{
			Cycles: 1,
			Frames: []Frame{{Icon: "i3092", Text: "hello"}},
			Sound:  &Sound{URL: "http://x/a.mp3", Type: "mp3", Fallback: DefaultSoundFallback()},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "info", received.Priority)
	require.Len(t, received.Model.Frames, 1)
	assert.Equal(t, "hello", received.Model.Frames[0].Text)
	require.NotNil(t, received.Model.Sound)
	assert.Equal(t, "mp3", received.Model.Sound.Type)
}

func TestSetDisplay(t *testing.T) {
	var patch map[string]any
	var method string

	server := discoveryServer(t, map[string]string{"display_url": "/api/v2/device/display"}, func(mux *http.ServeMux, base func() string) {
		mux.HandleFunc("/api/v2/device/display", func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			json.NewDecoder(r.Body).Decode(&patch)
			w.WriteHeader(http.StatusOK)
		})
	})

	client := newTestClient(t, server.URL)

	require.NoError(t, client.SetDisplay(context.Background(), map[string]any{"brightness": 40}))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, float64(40), patch["brightness"])
}
