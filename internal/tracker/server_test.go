package tracker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developingchet/staywindow/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *Tracker, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	tr, err := New(testConfig(), store)
	require.NoError(t, err)

	clock := &TestClock{CurrentTime: time.Date(2026, 3, 21, 9, 0, 0, 0, time.UTC)}
	srv := httptest.NewServer(NewServer(testConfig(), tr, clock).Handler())
	t.Cleanup(srv.Close)
	return srv, tr, store
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(out)
}

func TestServer_Health(t *testing.T) {
	srv, _, store := newTestServer(t)

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, store.Close())
	code, body = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "store closed")
}

func TestServer_Status(t *testing.T) {
	srv, tr, _ := newTestServer(t)
	_, err := tr.AddTrip(context.Background(), iv("2026-01-01", "2026-03-21"))
	require.NoError(t, err)

	t.Run("defaults to clock day", func(t *testing.T) {
		code, body := get(t, srv.URL+"/v1/status")
		require.Equal(t, http.StatusOK, code)

		var snap map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &snap))
		assert.Equal(t, "2026-03-21", snap["ref"])
		assert.Equal(t, float64(80), snap["used"])
		assert.Equal(t, float64(10), snap["remaining"])
		assert.Equal(t, "warning", snap["status"])
		assert.Equal(t, map[string]any{"start": "2025-09-23", "end": "2026-03-21"}, snap["window"])
	})

	t.Run("explicit ref", func(t *testing.T) {
		code, body := get(t, srv.URL+"/v1/status?ref=2026-12-31")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, `"used":0`)
		assert.Contains(t, body, `"status":"safe"`)
	})

	t.Run("bad ref", func(t *testing.T) {
		code, body := get(t, srv.URL+"/v1/status?ref=2026-02-30")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body, "invalid date")
	})

	t.Run("other traveller", func(t *testing.T) {
		code, body := get(t, srv.URL+"/v1/status?traveller=bob")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, `"traveller":"bob"`)
		assert.Contains(t, body, `"used":0`)
	})
}

func TestServer_PlanAndNextEntry(t *testing.T) {
	srv, tr, _ := newTestServer(t)

	code, body := get(t, srv.URL+"/v1/plan?entry=2026-03-01")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"max_stay_days":89`)
	assert.Contains(t, body, `"latest_exit":"2026-05-28"`)

	_, err := tr.AddTrip(context.Background(), iv("2026-01-01", "2026-03-31"))
	require.NoError(t, err)

	code, body = get(t, srv.URL+"/v1/plan?entry=2026-04-01")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"max_stay_days":0`)
	assert.NotContains(t, body, "latest_exit")
	assert.Contains(t, body, `"next_safe_entry":"2026-06-30"`)

	code, body = get(t, srv.URL+"/v1/next-entry?from=2026-04-01")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"from":"2026-04-01","next_safe_entry":"2026-06-30"}`, body)

	_, err = tr.AddTrip(context.Background(), iv("2025-09-01", "2028-12-31"))
	require.NoError(t, err)
	code, body = get(t, srv.URL+"/v1/plan?entry=2026-04-01")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"exhausted":true`)
	assert.NotContains(t, body, "next_safe_entry")

	code, _ = get(t, srv.URL+"/v1/plan?entry=tomorrow")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_ImportExport(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code, body := post(t, srv.URL+"/v1/trips", `[
		{"entry": "2026-01-10", "exit": "2026-01-01"},
		{"entry": "2026-13-01", "exit": "2026-01-02"},
		{"entry": "2026-02-01", "exit": "2026-02-05"}
	]`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{
		"trips": [{"entry":"2026-01-01","exit":"2026-01-10"},{"entry":"2026-02-01","exit":"2026-02-05"}],
		"skipped": [{"index":1,"field":"entry","detail":"invalid date: \"2026-13-01\": month 13 out of range"}]
	}`, body)

	code, body = get(t, srv.URL+"/v1/trips")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"entry":"2026-01-01","exit":"2026-01-10"},{"entry":"2026-02-01","exit":"2026-02-05"}]`, body)

	code, body = get(t, srv.URL+"/v1/trips?format=csv")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "entry,exit\n2026-01-01,2026-01-10\n2026-02-01,2026-02-05\n", body)

	code, body = post(t, srv.URL+"/v1/trips?replace=true", `[{"entry":"2026-06-01","exit":"2026-06-02"}]`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"trips":[{"entry":"2026-06-01","exit":"2026-06-02"}]`)

	code, body = get(t, srv.URL+"/v1/travellers")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["alice"]`, body)
}

func TestServer_ImportRejectsMalformed(t *testing.T) {
	srv, tr, _ := newTestServer(t)

	for _, payload := range []string{
		`{"entry":"2026-01-01","exit":"2026-01-02"}`,
		`null`,
		`[{"entry":"2026-01-01"}]`,
		`[{"entry":20260101,"exit":"2026-01-02"}]`,
	} {
		code, body := post(t, srv.URL+"/v1/trips", payload)
		assert.Equal(t, http.StatusBadRequest, code, payload)
		assert.Contains(t, body, "malformed trip import", payload)
	}

	s, err := tr.Trips(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	tr, err := New(cfg, storage.NewMemStore())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewServer(cfg, tr, RealClock{}).Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
