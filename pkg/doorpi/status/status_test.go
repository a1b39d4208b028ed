package status_test

import (
	"context"
	"encoding/json"
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

	"github.com/doorpi/doorpi/pkg/doorpi/action"
	"github.com/doorpi/doorpi/pkg/doorpi/event"
	"github.com/doorpi/doorpi/pkg/doorpi/status"
)

func setup(t *testing.T) (*event.Engine, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := event.New(event.WithLogger(logger))
	srv := httptest.NewServer(status.New(e, logger))
	t.Cleanup(func() {
		srv.Close()
		_ = e.Teardown(context.Background())
	})
	return e, srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStatus(t *testing.T) {
	e, srv := setup(t)
	e.RegisterEvent("OnKeyPressed", "gpio1")
	_, err := e.RegisterActionSpec("OnKeyPressed", "log:ring")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap event.Snapshot
	decode(t, resp, &snap)
	assert.Contains(t, snap.Sources, "gpio1")
	assert.Contains(t, snap.Sources, status.Source)
	assert.Contains(t, snap.Events, "OnKeyPressed")
	assert.Contains(t, snap.Events, status.EventRequest)
	assert.Equal(t, []string{"log:ring"}, snap.EventActions["OnKeyPressed"])
	assert.False(t, snap.Destroyed)
}

func TestRequestEvents(t *testing.T) {
	e, srv := setup(t)
	var all, gets atomic.Int32
	_, err := e.RegisterAction(status.EventRequest, action.Simple("all", func() error { all.Add(1); return nil }))
	require.NoError(t, err)
	_, err = e.RegisterAction(status.EventRequestGet, action.Simple("get", func() error { gets.Add(1); return nil }))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = http.Post(srv.URL+"/events/Nope/fire", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Eventually(t, func() bool { return all.Load() == 2 && gets.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEvent(t *testing.T) {
	e, srv := setup(t)
	e.RegisterEvent("OnKeyPressed", "gpio1")
	_, err := e.RegisterActionSpec("OnKeyPressed", "log:ring")
	require.NoError(t, err)

	t.Run("before first fire", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/events/OnKeyPressed")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		decode(t, resp, &body)
		assert.Equal(t, "OnKeyPressed", body["name"])
		assert.NotContains(t, body, "metadata")
	})

	t.Run("after fire", func(t *testing.T) {
		e.Fire(t.Context(), "OnKeyPressed", "gpio1", event.Sync, map[string]any{"pin": "7"})

		resp, err := http.Get(srv.URL + "/events/OnKeyPressed")
		require.NoError(t, err)

		var body struct {
			Sources        []string     `json:"sources"`
			Actions        []string     `json:"actions"`
			Metadata       event.Record `json:"metadata"`
			LastDurationMs *float64     `json:"last_duration_ms"`
		}
		decode(t, resp, &body)
		assert.Equal(t, []string{"gpio1"}, body.Sources)
		assert.Equal(t, []string{"log:ring"}, body.Actions)
		assert.Equal(t, "gpio1", body.Metadata.LastFiredFrom)
		assert.Equal(t, "7", body.Metadata.Extra["pin"])
		require.NotNil(t, body.LastDurationMs)
		assert.GreaterOrEqual(t, *body.LastDurationMs, 0.0)
	})

	t.Run("unknown", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/events/Nope")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestFire(t *testing.T) {
	e, srv := setup(t)
	e.RegisterEvent("OnDoorOpen", "gpio1")
	e.RegisterEvent("OnWebDoorOpen", status.Source)

	var got atomic.Value
	capture := action.Func("capture", func(_ context.Context, call action.Call) error {
		got.Store(call)
		return nil
	})
	for _, name := range []string{"OnDoorOpen", "OnWebDoorOpen"} {
		_, err := e.RegisterAction(name, capture)
		require.NoError(t, err)
	}

	tests := []struct {
		name       string
		path       string
		body       string
		wantCode   int
		wantStatus event.Status
	}{
		{"sync with extra", "/events/OnDoorOpen/fire?source=gpio1&mode=sync", `{"pin":"1234"}`, http.StatusOK, event.StatusFired},
		{"async default source", "/events/OnWebDoorOpen/fire", "", http.StatusAccepted, event.StatusScheduled},
		{"source unbound", "/events/OnDoorOpen/fire?mode=sync", "", http.StatusConflict, event.StatusSourceUnbound},
		{"source unknown", "/events/OnDoorOpen/fire?source=ghost", "", http.StatusConflict, event.StatusSourceUnknown},
		{"event unknown", "/events/Nope/fire", "", http.StatusNotFound, event.StatusEventUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var res event.Result
			decode(t, resp, &res)
			assert.Equal(t, tt.wantStatus, res.Status)
		})
	}

	call, ok := got.Load().(action.Call)
	require.True(t, ok)
	assert.NotEmpty(t, call.FireID)

	rec, ok := e.Metadata("OnDoorOpen")
	require.True(t, ok)
	assert.Equal(t, "1234", rec.Extra["pin"])
}

func TestFireBadRequests(t *testing.T) {
	_, srv := setup(t)

	resp, err := http.Post(srv.URL+"/events/Foo/fire?mode=later", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/events/Foo/fire", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestFireAfterTeardown(t *testing.T) {
	e, srv := setup(t)
	e.RegisterEvent("OnDoorOpen", "gpio1")
	_, err := e.RegisterActionSpec("OnDoorOpen", "log:open")
	require.NoError(t, err)
	require.NoError(t, e.Teardown(t.Context()))

	resp, err := http.Post(srv.URL+"/events/OnDoorOpen/fire?source=gpio1", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/eventlog")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, "event log closed by teardown")
	resp.Body.Close()
}

func TestEventLog(t *testing.T) {
	e, srv := setup(t)
	e.RegisterEvent("OnKeyPressed", "gpio1")
	e.RegisterEvent("OnDoorOpen", "gpio1")
	_, err := e.RegisterActionSpec("OnKeyPressed", "log:ring")
	require.NoError(t, err)
	_, err = e.RegisterActionSpec("OnDoorOpen", "log:open")
	require.NoError(t, err)

	e.Fire(t.Context(), "OnKeyPressed", "gpio1", event.Sync, nil)
	e.Fire(t.Context(), "OnDoorOpen", "gpio1", event.Sync, nil)

	t.Run("all", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/eventlog")
		require.NoError(t, err)

		var body struct {
			Entries []map[string]any `json:"entries"`
			Total   int              `json:"total"`
		}
		decode(t, resp, &body)
		assert.Equal(t, 4, body.Total)
		assert.Len(t, body.Entries, 4)
		assert.Equal(t, "OnDoorOpen", body.Entries[0]["event"])
	})

	t.Run("filter and max", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/eventlog?max=1&filter=OnKeyPressed")
		require.NoError(t, err)

		var body struct {
			Entries []map[string]any `json:"entries"`
		}
		decode(t, resp, &body)
		require.Len(t, body.Entries, 1)
		assert.Equal(t, "OnKeyPressed", body.Entries[0]["event"])
		assert.Equal(t, "log:ring", body.Entries[0]["action"])
	})

	t.Run("bad max", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/eventlog?max=zero")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := event.New(event.WithLogger(logger))
	defer e.Teardown(context.Background())

	s := status.New(e, logger)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	snap := e.Snapshot()
	assert.NotContains(t, snap.Sources, status.Source)
	assert.Empty(t, snap.Events)
}

func TestCORS(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := event.New(event.WithLogger(logger))
	srv := httptest.NewServer(status.New(e, logger, status.WithCORS("http://panel.local")))
	t.Cleanup(func() {
		srv.Close()
		_ = e.Teardown(context.Background())
	})

	get := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, "http://panel.local", get("http://panel.local").Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, get("http://evil.local").Header.Get("Access-Control-Allow-Origin"))

	_, plain := setup(t)
	req, err := http.NewRequest(http.MethodGet, plain.URL+"/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://panel.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
