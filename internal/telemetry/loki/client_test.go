package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureServer(t *testing.T, status int) (*httptest.Server, *PushRequest) {
	t.Helper()
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	raw := []byte(`{"kioskId":"store 12","category":"search","occurredAt":"2026-03-01T10:00:00.5Z"}`)

	require.NoError(t, PushEventJSON(context.Background(), srv.URL+"/", raw))

	require.Len(t, got.Streams, 1)
	s := got.Streams[0]
	assert.Equal(t, "kiosk", s.Stream["job"])
	assert.Equal(t, "store_12", s.Stream["kiosk_id"])
	assert.Equal(t, "search", s.Stream["category"])
	want := time.Date(2026, 3, 1, 10, 0, 0, 500000000, time.UTC).UnixNano()
	require.Len(t, s.Values, 1)
	assert.Equal(t, []string{jsonInt(want), string(raw)}, s.Values[0])
}

func TestPushEventJSON_UnparseableLine(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	require.NoError(t, PushEventJSON(context.Background(), srv.URL, []byte("not json")))
	require.Len(t, got.Streams, 1)
	assert.Equal(t, map[string]string{"job": "kiosk"}, got.Streams[0].Stream)
}

func TestPushEvent_Non2xx(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest)
	err := PushEvent(context.Background(), srv.URL, time.Now(), "x", nil)
	assert.ErrorContains(t, err, "400")
}

func TestPushEvent_EmptyURL(t *testing.T) {
	assert.Error(t, PushEvent(context.Background(), "", time.Now(), "x", nil))
}

func TestPusher_UsesClient(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	p := &Pusher{BaseURL: srv.URL, Client: srv.Client()}
	require.NoError(t, p.Push(context.Background(), []byte(`{"kioskId":"k1"}`)))
	assert.Equal(t, "k1", got.Streams[0].Stream["kiosk_id"])
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
