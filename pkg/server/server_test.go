package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hed1ad/accessguard/pkg/features"
	"github.com/hed1ad/accessguard/pkg/io"
	"github.com/hed1ad/accessguard/pkg/pipeline"
	"github.com/hed1ad/accessguard/pkg/risk"
	"github.com/hed1ad/accessguard/pkg/store"
)

func population() []features.Record {
	records := make([]features.Record, 0, 12)
	for i := 0; i < 11; i++ {
		records = append(records, features.Record{
			"user_name":                fmt.Sprintf("user%02d", i),
			"access_level":             "developer",
			"total_access_count":       3 + i%2,
			"unique_targets_accessed":  2,
			"target_diversity":         1,
			"sensitive_data_reachable": i % 2,
		})
	}
	records = append(records, features.Record{
		"user_name":                "mallory",
		"access_level":             "developer",
		"total_access_count":       60,
		"unique_targets_accessed":  25,
		"target_diversity":         8,
		"sensitive_data_reachable": 15,
		"roles_assumed":            4,
	})
	return records
}

func staticFactory(records []features.Record) SourceFactory {
	return func(context.Context) (io.Source, error) {
		return io.Static(records), nil
	}
}

func newTestService(t *testing.T, records []features.Record, opts ...ServiceOption) *Service {
	t.Helper()
	p, err := pipeline.New(pipeline.DefaultConfig(), pipeline.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return NewService(p, staticFactory(records), opts...)
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServerEndpoints(t *testing.T) {
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	defer st.Close()

	svc := newTestService(t, population(), WithSaver(st))
	srv := NewServer(":0", svc, st, "test-v1", zaptest.NewLogger(t))

	t.Run("health", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "test-v1")
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})

	t.Run("latest before any run", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/reports/latest")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	rec := do(t, srv, http.MethodPost, "/runs")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created risk.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.RunID)
	assert.Equal(t, 12, created.Summary.TotalEntities)

	t.Run("latest", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/reports/latest")
		require.Equal(t, http.StatusOK, rec.Code)
		var got risk.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, created.RunID, got.RunID)
	})

	t.Run("runs", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/runs?limit=5")
		require.Equal(t, http.StatusOK, rec.Code)
		var runs []store.Run
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, created.RunID, runs[0].ID)
	})

	t.Run("run by id", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/runs/"+created.RunID)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, srv, http.MethodGet, "/runs/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("entity history", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/entities/mallory/history")
		require.Equal(t, http.StatusOK, rec.Code)
		var scores []store.EntityScore
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scores))
		require.Len(t, scores, 1)
		assert.Equal(t, created.RunID, scores[0].RunID)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/runs?limit=abc")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "accessguard_runs_total")
		assert.Contains(t, rec.Body.String(), "accessguard_entities_by_risk_level")
	})
}

func TestServerWithoutHistory(t *testing.T) {
	srv := NewServer(":0", newTestService(t, population()), nil, "dev", nil)

	for _, path := range []string{"/runs", "/runs/abc", "/entities/x/history"} {
		rec := do(t, srv, http.MethodGet, path)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, path)
	}
}

func TestTriggerRunSchemaError(t *testing.T) {
	srv := NewServer(":0", newTestService(t, nil), nil, "dev", nil)

	rec := do(t, srv, http.MethodPost, "/runs")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "SchemaError"))
}

type failingSaver struct{ calls int }

func (f *failingSaver) SaveReport(context.Context, *risk.Report) error {
	f.calls++
	return errors.New("disk full")
}

type recordingPublisher struct{ runs []string }

func (p *recordingPublisher) Publish(_ context.Context, r *risk.Report) error {
	p.runs = append(p.runs, r.RunID)
	return nil
}

func TestRunOnceSideEffects(t *testing.T) {
	saver := &failingSaver{}
	pub := &recordingPublisher{}
	svc := newTestService(t, population(), WithSaver(saver), WithPublisher(pub), WithServiceLogger(zaptest.NewLogger(t)))

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saver.calls)
	assert.Equal(t, []string{report.RunID}, pub.runs)
	assert.Same(t, report, svc.Latest())
}

func TestRunOnceSourceError(t *testing.T) {
	p, err := pipeline.New(pipeline.DefaultConfig())
	require.NoError(t, err)
	boom := errors.New("unreachable")
	svc := NewService(p, func(context.Context) (io.Source, error) { return nil, boom })

	_, err = svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, svc.Latest())
}

func TestLoopStopsOnCancel(t *testing.T) {
	svc := newTestService(t, population())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.Loop(ctx, time.Hour)
	assert.NotNil(t, svc.Latest())
}
