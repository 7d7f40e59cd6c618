package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumarlokesh/cow-trie/internal/api"
	"github.com/kumarlokesh/cow-trie/internal/store"
	"github.com/kumarlokesh/cow-trie/internal/wal"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{
		Dir:         t.TempDir(),
		MaxVersions: 4,
		WAL:         wal.Config{Sync: true, FlushInterval: 10 * time.Millisecond},
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(api.NewServer(":0", st, zerolog.Nop()).Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = st.Close()
	})
	return ts, st
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestAPI(t *testing.T) {
	ts, st := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("Get missing key", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, ts.URL+"/keys/nope", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	var firstVersion uint64
	t.Run("Put and get", func(t *testing.T) {
		resp, body := do(t, http.MethodPut, ts.URL+"/keys/users/alice", "admin")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		firstVersion = uint64(body["version"].(float64))

		resp, body = do(t, http.MethodGet, ts.URL+"/keys/users/alice", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "admin", body["value"])

		got, err := st.Get("users/alice")
		require.NoError(t, err)
		assert.Equal(t, []byte("admin"), got)
	})

	t.Run("Overwrite keeps old version readable", func(t *testing.T) {
		resp, _ := do(t, http.MethodPut, ts.URL+"/keys/users/alice", "viewer")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := do(t, http.MethodGet, fmt.Sprintf("%s/versions/%d/keys/users/alice", ts.URL, firstVersion), "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "admin", body["value"])

		resp, _ = do(t, http.MethodGet, ts.URL+"/versions/999/keys/users/alice", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("List with prefix", func(t *testing.T) {
		do(t, http.MethodPut, ts.URL+"/keys/users/bob", "b")
		do(t, http.MethodPut, ts.URL+"/keys/groups/ops", "g")

		resp, body := do(t, http.MethodGet, ts.URL+"/keys?prefix=users/", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []any{"users/alice", "users/bob"}, body["keys"])

		_, body = do(t, http.MethodGet, ts.URL+"/keys?prefix=zzz", "")
		assert.Equal(t, []any{}, body["keys"])
	})

	t.Run("Delete", func(t *testing.T) {
		resp, _ := do(t, http.MethodDelete, ts.URL+"/keys/users/bob", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = do(t, http.MethodGet, ts.URL+"/keys/users/bob", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Current version and checkpoint", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/versions/current", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(2), body["keys"])
		assert.Equal(t, float64(st.Snapshot().ID), body["version"])

		resp, body = do(t, http.MethodPost, ts.URL+"/checkpoint", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(st.Snapshot().LSN), body["lsn"])
	})

	t.Run("Value too large", func(t *testing.T) {
		resp, _ := do(t, http.MethodPut, ts.URL+"/keys/big", strings.Repeat("x", 70*1024))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("Key too large", func(t *testing.T) {
		before := st.Snapshot().ID
		resp, body := do(t, http.MethodPut, ts.URL+"/keys/"+strings.Repeat("k", 70000), "v")
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "key too large", body["error"])
		assert.Equal(t, before, st.Snapshot().ID)
	})
}
