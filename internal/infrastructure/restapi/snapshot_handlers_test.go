package restapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/pkg/logger"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var generatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubSnapshotService struct {
	record        *entity.SnapshotRecord
	latestErr     error
	refreshErr    error
	invalidateErr error
	namesErr      error
	progress      entity.RefreshProgress

	invalidated int
	refreshed   int
}

func (s *stubSnapshotService) Refresh(context.Context) (*entity.SnapshotRecord, error) {
	s.refreshed++
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.record, nil
}

func (s *stubSnapshotService) Latest(context.Context) (*entity.SnapshotRecord, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	return s.record, nil
}

func (s *stubSnapshotService) Current() *entity.SnapshotRecord { return s.record }

func (s *stubSnapshotService) Invalidate(context.Context) error {
	s.invalidated++
	return s.invalidateErr
}

func (s *stubSnapshotService) Progress() entity.RefreshProgress { return s.progress }

func (s *stubSnapshotService) GroupNames() ([]string, error) {
	if s.namesErr != nil {
		return nil, s.namesErr
	}
	if s.record == nil {
		return nil, nil
	}
	names := make([]string, 0, len(s.record.Snapshot.Groups))
	for _, g := range s.record.Snapshot.Groups {
		names = append(names, g.Name)
	}
	return names, nil
}

func member(label, address string, drops int64) entity.GroupMember {
	return entity.GroupMember{
		Label:         label,
		BalanceResult: entity.NewFoundResult(address, decimal.NewFromInt(drops), 1, generatedAt),
	}
}

func sampleRecord() *entity.SnapshotRecord {
	failed := entity.GroupMember{
		Label:         "ExchA cold",
		BalanceResult: entity.NewExhaustedResult("rA2", entity.ErrorNetworkTimeout, 9, generatedAt),
	}
	groups := []entity.GroupAggregate{
		{
			Name:         "ExchA",
			TotalBalance: decimal.NewFromInt(300),
			WalletCount:  3,
			ErrorCount:   1,
			Members: []entity.GroupMember{
				member("ExchA small", "rA1", 100_000_000), failed, member("ExchA big", "rA3", 200_000_000),
			},
		},
		{
			Name:         "ExchB",
			TotalBalance: decimal.NewFromInt(700),
			WalletCount:  1,
			Members:      []entity.GroupMember{member("ExchB", "rB1", 700_000_000)},
		},
	}
	return &entity.SnapshotRecord{
		CycleID:       "cycle-1",
		Snapshot:      entity.NewMarketSnapshot(groups, generatedAt),
		ReferenceDate: "2024-01-01",
		Addresses:     4,
		Failed:        1,
	}
}

func newTestRouter(svc *stubSnapshotService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSnapshotHandler(svc, logger.Nop(), time.Second)
	return SetupRouter(h, zap.NewNop(), RouterOptions{
		MetricsHandler: promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	})
}

func perform(t *testing.T, router *gin.Engine, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	router.ServeHTTP(w, req)

	var body map[string]any
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 {
		require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func TestGetSnapshot(t *testing.T) {
	router := newTestRouter(&stubSnapshotService{record: sampleRecord()})

	w, body := perform(t, router, http.MethodGet, "/api/v1/snapshot?top=1")

	require.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	assert.Equal(t, "cycle-1", d["cycleId"])
	assert.Equal(t, "2024-01-01", d["referenceDate"])
	assert.Equal(t, "1000", d["totalBalance"])
	assert.Equal(t, "100", d["top3Share"])
	assert.Equal(t, "100", d["top10Share"])
	assert.Equal(t, "70", d["topNShare"])
	assert.EqualValues(t, 1, d["errorCount"])
	assert.Equal(t, []any{"70", "100"}, d["cumulativeShares"])

	groups := d["groups"].([]any)
	require.Len(t, groups, 2)
	first := groups[0].(map[string]any)
	assert.Equal(t, "ExchB", first["name"])
	assert.EqualValues(t, 1, first["rank"])
	assert.Equal(t, "70", first["marketShare"])
	assert.Contains(t, body["status_message"], "1 addresses could not be fetched")
}

func TestGetSnapshotSelection(t *testing.T) {
	router := newTestRouter(&stubSnapshotService{record: sampleRecord()})

	w, body := perform(t, router, http.MethodGet, "/api/v1/snapshot?groups=ExchA,%20Nope")

	require.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	groups := d["groups"].([]any)
	require.Len(t, groups, 1)
	assert.Equal(t, "ExchA", groups[0].(map[string]any)["name"])
	assert.Equal(t, "100", groups[0].(map[string]any)["marketShare"])
	assert.Equal(t, "300", d["totalBalance"])
	assert.NotContains(t, d, "topNShare")
	assert.Contains(t, body["status_message"], "Unknown groups ignored: Nope.")
}

func TestGetSnapshotBadTop(t *testing.T) {
	router := newTestRouter(&stubSnapshotService{record: sampleRecord()})

	for _, top := range []string{"abc", "0", "-2"} {
		w, body := perform(t, router, http.MethodGet, "/api/v1/snapshot?top="+top)
		assert.Equal(t, http.StatusBadRequest, w.Code, top)
		assert.Contains(t, body["error"], "top must be a positive integer")
	}
}

func TestGetSnapshotServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"registry", fmt.Errorf("failed to load registry: %w", errors.New("no such file")), http.StatusInternalServerError},
		{"deadline", fmt.Errorf("refresh cycle abandoned: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubSnapshotService{latestErr: tt.err})

			w, body := perform(t, router, http.MethodGet, "/api/v1/snapshot")

			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, body["error"], "Failed to build snapshot")
			assert.NotContains(t, body, "data")
		})
	}
}

func TestGetGroups(t *testing.T) {
	router := newTestRouter(&stubSnapshotService{record: sampleRecord()})

	w, body := perform(t, router, http.MethodGet, "/api/v1/groups")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"ExchB", "ExchA"}, data(t, body)["groups"])

	router = newTestRouter(&stubSnapshotService{namesErr: entity.ErrEmptyRegistry})
	w, _ = perform(t, router, http.MethodGet, "/api/v1/groups")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetGroupWallets(t *testing.T) {
	router := newTestRouter(&stubSnapshotService{record: sampleRecord()})

	w, body := perform(t, router, http.MethodGet, "/api/v1/groups/ExchA/wallets")

	require.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	assert.Equal(t, "ExchA", d["group"].(map[string]any)["name"])

	wallets := d["wallets"].([]any)
	require.Len(t, wallets, 3)
	labels := make([]string, 0, len(wallets))
	for _, raw := range wallets {
		labels = append(labels, raw.(map[string]any)["label"].(string))
	}
	assert.Equal(t, []string{"ExchA big", "ExchA small", "ExchA cold"}, labels)

	cold := wallets[2].(map[string]any)
	assert.Equal(t, "fetch_exhausted", cold["error"])
	assert.Equal(t, "network_timeout", cold["lastFailure"])
	assert.Equal(t, "0", cold["balance"])
	assert.Contains(t, body["status_message"], "1 of 3 could not be fetched")
}

func TestGetGroupWalletsUnknownGroup(t *testing.T) {
	router := newTestRouter(&stubSnapshotService{record: sampleRecord()})

	w, body := perform(t, router, http.MethodGet, "/api/v1/groups/Nope/wallets")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown group: Nope", body["error"])
}

func TestPostRefresh(t *testing.T) {
	svc := &stubSnapshotService{record: sampleRecord()}
	router := newTestRouter(svc)

	w, body := perform(t, router, http.MethodPost, "/api/v1/refresh")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.invalidated)
	assert.Equal(t, 1, svc.refreshed)
	assert.Equal(t, "cycle-1", data(t, body)["cycleId"])
}

func TestPostRefreshInvalidateFails(t *testing.T) {
	svc := &stubSnapshotService{record: sampleRecord(), invalidateErr: errors.New("redis down")}
	router := newTestRouter(svc)

	w, body := perform(t, router, http.MethodPost, "/api/v1/refresh")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "redis down")
	assert.Equal(t, 0, svc.refreshed)
}

func TestPostRefreshFails(t *testing.T) {
	svc := &stubSnapshotService{refreshErr: entity.ErrEmptyRegistry}
	router := newTestRouter(svc)

	w, body := perform(t, router, http.MethodPost, "/api/v1/refresh")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "Refresh failed")
}

func TestGetStatus(t *testing.T) {
	svc := &stubSnapshotService{progress: entity.RefreshProgress{Running: true, Done: 5, Total: 20}}
	router := newTestRouter(svc)

	w, body := perform(t, router, http.MethodGet, "/api/v1/status")

	require.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	assert.Equal(t, true, d["running"])
	assert.InDelta(t, 0.25, d["progress"], 1e-9)
	assert.NotContains(t, d, "lastUpdated")
	assert.Equal(t, "Refresh in progress: 5/20.", body["status_message"])

	svc.record = sampleRecord()
	svc.progress = entity.RefreshProgress{Done: 4, Total: 4}
	_, body = perform(t, router, http.MethodGet, "/api/v1/status")
	d = data(t, body)
	assert.Equal(t, "cycle-1", d["cycleId"])
	assert.Equal(t, generatedAt.Format(time.RFC3339), d["lastUpdated"])
	assert.Equal(t, "Snapshot available.", body["status_message"])
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(&stubSnapshotService{})

	w, body := perform(t, router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPprofIsOptIn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSnapshotHandler(&stubSnapshotService{}, logger.Nop(), 0)

	off := SetupRouter(h, zap.NewNop(), RouterOptions{})
	w := httptest.NewRecorder()
	off.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	on := SetupRouter(h, zap.NewNop(), RouterOptions{EnablePprof: true})
	w = httptest.NewRecorder()
	on.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
