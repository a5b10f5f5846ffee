package restapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	Data          any    `json:"data"`
	StatusMessage string `json:"status_message"`
}

// APIError is returned with every non-2xx status.
type APIError struct {
	Error string `json:"error"`
}

// GroupView is one ranked row of the market table.
type GroupView struct {
	Rank            int              `json:"rank"`
	Name            string           `json:"name"`
	TotalBalance    decimal.Decimal  `json:"totalBalance"`
	TotalHistorical *decimal.Decimal `json:"totalHistorical,omitempty"`
	ChangeAbsolute  *decimal.Decimal `json:"changeAbsolute,omitempty"`
	ChangePercent   *decimal.Decimal `json:"changePercent,omitempty"`
	MarketShare     decimal.Decimal  `json:"marketShare"`
	WalletCount     int              `json:"walletCount"`
	ErrorCount      int              `json:"errorCount"`
}

// SnapshotView is the market table together with its concentration figures.
type SnapshotView struct {
	CycleID          string            `json:"cycleId"`
	ReferenceDate    string            `json:"referenceDate,omitempty"`
	LastUpdated      time.Time         `json:"lastUpdated"`
	TotalBalance     decimal.Decimal   `json:"totalBalance"`
	Top3Share        decimal.Decimal   `json:"top3Share"`
	Top10Share       decimal.Decimal   `json:"top10Share"`
	TopN             int               `json:"topN,omitempty"`
	TopNShare        *decimal.Decimal  `json:"topNShare,omitempty"`
	CumulativeShares []decimal.Decimal `json:"cumulativeShares"`
	ErrorCount       int               `json:"errorCount"`
	Groups           []GroupView       `json:"groups"`
}

// WalletView is one address of a group drill-down.
type WalletView struct {
	Label       string           `json:"label"`
	Address     string           `json:"address"`
	Balance     decimal.Decimal  `json:"balance"`
	Historical  *decimal.Decimal `json:"historical,omitempty"`
	Found       bool             `json:"found"`
	Error       string           `json:"error,omitempty"`
	LastFailure string           `json:"lastFailure,omitempty"`
	Attempts    int              `json:"attempts"`
}

// GroupWalletsView is the drill-down for a single group.
type GroupWalletsView struct {
	Group   GroupView    `json:"group"`
	Wallets []WalletView `json:"wallets"`
}

// StatusView reports refresh progress.
type StatusView struct {
	Running     bool       `json:"running"`
	Done        int        `json:"done"`
	Total       int        `json:"total"`
	Progress    float64    `json:"progress"`
	CycleID     string     `json:"cycleId,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// SnapshotHandler обрабатывает HTTP запросы, связанные со снапшотами рынка.
type SnapshotHandler struct {
	snapshotService port.SnapshotService
	logger          port.Logger
	refreshTimeout  time.Duration
}

// NewSnapshotHandler creates a new SnapshotHandler. refreshTimeout bounds a manual refresh;
// zero leaves it to the request context.
func NewSnapshotHandler(ss port.SnapshotService, logger port.Logger, refreshTimeout time.Duration) *SnapshotHandler {
	return &SnapshotHandler{
		snapshotService: ss,
		logger:          logger,
		refreshTimeout:  refreshTimeout,
	}
}

// GetSnapshotHandler returns the ranked market table, optionally restricted to ?groups=A,B.
func (h *SnapshotHandler) GetSnapshotHandler(c *gin.Context) {
	topN := 0
	if raw := c.Query("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, APIError{Error: fmt.Sprintf("top must be a positive integer, got %q", raw)})
			return
		}
		topN = n
	}

	record, err := h.snapshotService.Latest(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to build snapshot", err)
		return
	}

	selected := utils.SplitList(c.Query("groups"))
	snapshot := record.Snapshot.Select(selected)

	var unknown []string
	for _, name := range selected {
		if _, ok := record.Snapshot.Group(name); !ok {
			unknown = append(unknown, name)
		}
	}

	view := newSnapshotView(record, snapshot, topN)
	c.JSON(http.StatusOK, APIResponse{Data: view, StatusMessage: snapshotMessage(snapshot, unknown)})
}

// GetGroupsHandler lists registry group names.
func (h *SnapshotHandler) GetGroupsHandler(c *gin.Context) {
	names, err := h.snapshotService.GroupNames()
	if err != nil {
		h.fail(c, "Failed to list groups", err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Data:          gin.H{"groups": names},
		StatusMessage: fmt.Sprintf("%d groups.", len(names)),
	})
}

// GetGroupWalletsHandler returns one group's addresses, largest balance first.
func (h *SnapshotHandler) GetGroupWalletsHandler(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))

	record, err := h.snapshotService.Latest(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to build snapshot", err)
		return
	}

	group, ok := record.Snapshot.Group(name)
	if !ok {
		c.JSON(http.StatusNotFound, APIError{Error: fmt.Errorf("%w: %s", entity.ErrUnknownGroup, name).Error()})
		return
	}

	ranked := group.RankedMembers()
	wallets := make([]WalletView, 0, len(ranked))
	for _, m := range ranked {
		wallets = append(wallets, newWalletView(m))
	}

	msg := "Wallets retrieved successfully."
	if group.ErrorCount > 0 {
		msg = fmt.Sprintf("Wallets retrieved. %d of %d could not be fetched.", group.ErrorCount, group.WalletCount)
	}
	c.JSON(http.StatusOK, APIResponse{
		Data:          GroupWalletsView{Group: newGroupView(group), Wallets: wallets},
		StatusMessage: msg,
	})
}

// PostRefreshHandler drops cached balances and runs a new cycle.
func (h *SnapshotHandler) PostRefreshHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if h.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.refreshTimeout)
		defer cancel()
	}

	if err := h.snapshotService.Invalidate(ctx); err != nil {
		h.fail(c, "Failed to invalidate balance cache", err)
		return
	}

	record, err := h.snapshotService.Refresh(ctx)
	if err != nil {
		h.fail(c, "Refresh failed", err)
		return
	}

	h.logger.Info("Manual refresh completed", "cycle_id", record.CycleID)
	view := newSnapshotView(record, record.Snapshot, 0)
	c.JSON(http.StatusOK, APIResponse{Data: view, StatusMessage: snapshotMessage(record.Snapshot, nil)})
}

// GetStatusHandler reports refresh progress and when the current snapshot was built.
func (h *SnapshotHandler) GetStatusHandler(c *gin.Context) {
	p := h.snapshotService.Progress()
	view := StatusView{
		Running:  p.Running,
		Done:     p.Done,
		Total:    p.Total,
		Progress: p.Fraction(),
	}

	msg := "No snapshot yet."
	if record := h.snapshotService.Current(); record != nil {
		at := record.Snapshot.GeneratedAt
		view.CycleID = record.CycleID
		view.LastUpdated = &at
		msg = "Snapshot available."
	}
	if p.Running {
		msg = fmt.Sprintf("Refresh in progress: %d/%d.", p.Done, p.Total)
	}
	c.JSON(http.StatusOK, APIResponse{Data: view, StatusMessage: msg})
}

func (h *SnapshotHandler) fail(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	h.logger.Error(msg, "error", err, "path", c.FullPath(), "status", status)
	c.JSON(status, APIError{Error: fmt.Sprintf("%s: %v", msg, err)})
}

func newSnapshotView(record *entity.SnapshotRecord, snapshot entity.MarketSnapshot, topN int) SnapshotView {
	view := SnapshotView{
		CycleID:          record.CycleID,
		ReferenceDate:    record.ReferenceDate,
		LastUpdated:      snapshot.GeneratedAt,
		TotalBalance:     snapshot.TotalBalance,
		Top3Share:        snapshot.Concentration(3),
		Top10Share:       snapshot.Concentration(10),
		CumulativeShares: snapshot.CumulativeShares(),
		ErrorCount:       snapshot.ErrorCount(),
		Groups:           make([]GroupView, 0, len(snapshot.Groups)),
	}
	if topN > 0 {
		share := snapshot.Concentration(topN)
		view.TopN = topN
		view.TopNShare = &share
	}
	for _, g := range snapshot.Groups {
		view.Groups = append(view.Groups, newGroupView(g))
	}
	return view
}

func newGroupView(g entity.GroupAggregate) GroupView {
	return GroupView{
		Rank:            g.Rank,
		Name:            g.Name,
		TotalBalance:    g.TotalBalance,
		TotalHistorical: g.TotalHistorical,
		ChangeAbsolute:  g.ChangeAbsolute,
		ChangePercent:   g.ChangePercent,
		MarketShare:     g.MarketShare,
		WalletCount:     g.WalletCount,
		ErrorCount:      g.ErrorCount,
	}
}

func newWalletView(m entity.GroupMember) WalletView {
	v := WalletView{
		Label:      m.Label,
		Address:    m.Address,
		Balance:    m.Balance,
		Historical: m.Historical,
		Found:      m.Found,
		Attempts:   m.Attempts,
	}
	if m.Error != entity.ErrorNone {
		v.Error = string(m.Error)
	}
	if m.LastFailure != entity.ErrorNone {
		v.LastFailure = string(m.LastFailure)
	}
	return v
}

func snapshotMessage(snapshot entity.MarketSnapshot, unknown []string) string {
	var msg string
	switch errs := snapshot.ErrorCount(); {
	case len(snapshot.Groups) == 0:
		msg = "No group data found. Check the registry and the groups filter."
	case errs > 0:
		msg = fmt.Sprintf("Snapshot retrieved. %d addresses could not be fetched and count as zero.", errs)
	default:
		msg = "Snapshot retrieved successfully."
	}
	if len(unknown) > 0 {
		msg += " Unknown groups ignored: " + strings.Join(unknown, ", ") + "."
	}
	return msg
}
