package client

import (
	"time"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/infrastructure/configloader"
	"holdings_tracker/internal/infrastructure/metrics"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientProvider implements port.LedgerClientProvider. All clients share one fasthttp.Client
// and each endpoint gets its own rate limiter.
type clientProvider struct {
	clients []port.LedgerClient
}

// NewClientProvider builds one RippledClient per configured endpoint, keeping config order.
func NewClientProvider(cfg *configloader.Config, logger *zap.Logger, m *metrics.Metrics) port.LedgerClientProvider {
	httpClient := &fasthttp.Client{
		Name:                "holdings_tracker",
		MaxConnsPerHost:     cfg.Ledger.MaxConnsPerHost,
		MaxIdleConnDuration: 30 * time.Second,
		ReadTimeout:         cfg.RequestTimeout(),
		WriteTimeout:        cfg.RequestTimeout(),
	}

	clients := make([]port.LedgerClient, 0, len(cfg.Ledger.Endpoints))
	for _, ep := range cfg.Ledger.Endpoints {
		limiter := rate.NewLimiter(rate.Limit(cfg.Ledger.RateLimit), cfg.Ledger.BurstLimit)
		clients = append(clients, NewRippledClient(httpClient, ep, cfg.RequestTimeout(), limiter, logger, m))
		logger.Info("Ledger client initialized", zap.String("endpoint", ep.Label()), zap.String("url", ep.URL))
	}
	return &clientProvider{clients: clients}
}

// Clients returns the endpoint clients in fallback order.
func (p *clientProvider) Clients() []port.LedgerClient {
	return p.clients
}
