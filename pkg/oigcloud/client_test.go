package oigcloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloud struct {
	mu          sync.Mutex
	logins      int
	statsCalls  int
	expireOnce  bool
	writes      []map[string]any
	writePaths  []string
	cookies     []string
	rejectLogin bool
}

func (f *fakeCloud) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/"+loginPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.logins++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.rejectLogin || body["email"] != "user@example.com" {
			_, _ = io.WriteString(w, `[[1,"",false]]`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "sess-1"})
		_, _ = io.WriteString(w, loginSuccessBody)
	})
	mux.HandleFunc("/"+statsPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.statsCalls++
		f.cookies = append(f.cookies, r.Header.Get("Cookie"))
		if f.expireOnce {
			f.expireOnce = false
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `{"2206237016":{"queen":false,"box_prms":{"mode":1,"crcte":1},"invertor_prms":{"to_grid":1},"invertor_prm1":{"p_max_feed_grid":5000}}}`)
	})
	write := func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.writes = append(f.writes, body)
		f.writePaths = append(f.writePaths, r.URL.Path)
		if r.URL.Query().Get("_nonce") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `[[0,2,"OK"]]`)
	}
	mux.HandleFunc("/"+setValuePath, write)
	mux.HandleFunc("/"+toGridPath, write)
	return mux
}

func newTestClient(t *testing.T, f *fakeCloud, opts ...Option) *Client {
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBaseURL(srv.URL), WithCacheTTL(0)}, opts...)
	return NewClient("user@example.com", "secret", opts...)
}

func TestGetStats(t *testing.T) {

	require := require.New(t)
	f := &fakeCloud{}
	c := newTestClient(t, f)

	stats, err := c.GetStats(context.Background())
	require.NoError(err)
	id, box, err := stats.Box()
	require.NoError(err)
	require.Equal("2206237016", id)
	require.Equal("2206237016", c.BoxID())
	mode, ok := box.Node("box_prms", "mode")
	require.True(ok)
	require.EqualValues(1, mode)
	require.False(box.Queen())

	require.Equal(1, f.logins)
	require.Equal("PHPSESSID=sess-1", f.cookies[0])
}

func TestGetStatsReauthenticatesOnce(t *testing.T) {

	assert := assert.New(t)
	f := &fakeCloud{expireOnce: true}
	c := newTestClient(t, f)

	_, err := c.GetStats(context.Background())
	assert.NoError(err)
	assert.Equal(2, f.logins)
	assert.Equal(2, f.statsCalls)
}

func TestGetStatsCached(t *testing.T) {

	assert := assert.New(t)
	f := &fakeCloud{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, f, WithCacheTTL(10*time.Second), WithClock(func() time.Time { return now }))

	_, err := c.GetStats(context.Background())
	assert.NoError(err)
	_, err = c.GetStats(context.Background())
	assert.NoError(err)
	assert.Equal(1, f.statsCalls)

	now = now.Add(11 * time.Second)
	_, err = c.GetStats(context.Background())
	assert.NoError(err)
	assert.Equal(2, f.statsCalls)
}

func TestAuthenticationFailure(t *testing.T) {

	assert := assert.New(t)
	f := &fakeCloud{rejectLogin: true}
	c := newTestClient(t, f)

	err := c.Authenticate(context.Background())
	assert.ErrorIs(err, ErrAuthentication)
	_, err = c.GetStats(context.Background())
	assert.ErrorIs(err, ErrAuthentication)
}

func TestSetCommands(t *testing.T) {

	require := require.New(t)
	f := &fakeCloud{}
	c := newTestClient(t, f)
	ctx := context.Background()

	require.NoError(c.SetBoxMode(ctx, 2))
	require.NoError(c.SetGridDelivery(ctx, true))
	require.NoError(c.SetGridDeliveryLimit(ctx, 3500))
	require.NoError(c.SetBoilerMode(ctx, 1))

	require.Len(f.writes, 4)
	require.Equal("/"+setValuePath, f.writePaths[0])
	require.Equal(map[string]any{"id_device": "2206237016", "table": "box_prms", "column": "mode", "value": "2"}, f.writes[0])
	require.Equal("/"+toGridPath, f.writePaths[1])
	require.Equal(map[string]any{"id_device": "2206237016", "value": float64(1)}, f.writes[1])
	require.Equal("p_max_feed_grid", f.writes[2]["column"])
	require.Equal("3500", f.writes[2]["value"])
	require.Equal("boiler_prms", f.writes[3]["table"])
}

func TestCircuitBreakerOpens(t *testing.T) {

	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	var requests int
	var states []gobreaker.State
	c := NewClient("user@example.com", "secret", WithBaseURL(srv.URL), WithCacheTTL(0),
		WithRequestHook(func(op string, elapsed time.Duration, err error) { requests++ }),
		WithBreakerHook(func(from, to gobreaker.State) { states = append(states, to) }))

	for i := 0; i < 5; i++ {
		_, err := c.GetStats(context.Background())
		assert.Error(err)
	}
	_, err := c.GetStats(context.Background())
	assert.Error(err)
	assert.Contains(err.Error(), "unavailable")
	assert.Equal(6, requests)
	assert.Equal([]gobreaker.State{gobreaker.StateOpen}, states)
}

func TestTestCloudClientAppliesLater(t *testing.T) {

	assert := assert.New(t)
	c := NewTestCloudClient()
	ctx := context.Background()

	assert.NoError(c.SetBoxMode(ctx, 3))
	stats, _ := c.GetStats(ctx)
	_, box, _ := stats.Box()
	mode, _ := box.Node("box_prms", "mode")
	assert.Equal(0, mode)

	c.ApplyPending()
	stats, _ = c.GetStats(ctx)
	_, box, _ = stats.Box()
	mode, _ = box.Node("box_prms", "mode")
	assert.Equal(3, mode)

	c.Err = errors.New("down")
	assert.Error(c.SetBoilerMode(ctx, 1))
	assert.Equal(1, c.WriteCount())
}
