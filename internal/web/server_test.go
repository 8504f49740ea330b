package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ssuji15/docbuilder/internal/metrics"
	"github.com/ssuji15/docbuilder/model"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	eligible int64
	entries  []model.QueueEntry
	err      error
}

func (q *fakeQueue) CountEligible(context.Context) (int64, error) {
	return q.eligible, q.err
}

func (q *fakeQueue) List(context.Context) ([]model.QueueEntry, error) {
	return q.entries, q.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s := NewServer(&fakeQueue{}, nil)

	rec := get(t, s.Router(), "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok\n", rec.Body.String())
}

func TestServer_Queue(t *testing.T) {
	tests := []struct {
		name       string
		queue      *fakeQueue
		wantStatus int
		want       QueueStatus
	}{
		{
			name: "lists entries",
			queue: &fakeQueue{
				eligible: 1,
				entries: []model.QueueEntry{
					{ID: 1, Name: "serde", Version: "1.0.0", Priority: 0, Attempt: 0},
					{ID: 2, Name: "rand", Version: "0.8.5", Priority: 0, Attempt: 5},
				},
			},
			wantStatus: http.StatusOK,
			want: QueueStatus{
				Eligible: 1,
				Entries: []model.QueueEntry{
					{ID: 1, Name: "serde", Version: "1.0.0", Priority: 0, Attempt: 0},
					{ID: 2, Name: "rand", Version: "0.8.5", Priority: 0, Attempt: 5},
				},
			},
		},
		{
			name:       "empty queue",
			queue:      &fakeQueue{},
			wantStatus: http.StatusOK,
			want:       QueueStatus{Entries: []model.QueueEntry{}},
		},
		{
			name:       "store failure",
			queue:      &fakeQueue{err: errors.New("connection refused")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(tt.queue, nil)

			rec := get(t, s.Router(), "/queue")

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got QueueStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	t.Run("mounted with a handler", func(t *testing.T) {
		pr := metrics.NewPrometheusRecorder(nil)
		pr.AddEnqueued(3)
		s := NewServer(&fakeQueue{}, pr.Handler())

		rec := get(t, s.Router(), "/metrics")

		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, strings.Contains(rec.Body.String(), "docbuilder_enqueued_total 3"))
	})

	t.Run("absent without a handler", func(t *testing.T) {
		s := NewServer(&fakeQueue{}, nil)

		rec := get(t, s.Router(), "/metrics")

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
