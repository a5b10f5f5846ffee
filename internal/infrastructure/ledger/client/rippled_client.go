package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/infrastructure/metrics"
	"holdings_tracker/internal/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// rippledAccountNotFound is the error code rippled returns for an unfunded account.
const rippledAccountNotFound = "actNotFound"

type accountInfoParams struct {
	Account     string `json:"account"`
	LedgerIndex string `json:"ledger_index"`
	Strict      bool   `json:"strict"`
}

type accountInfoRequest struct {
	Method string              `json:"method"`
	Params []accountInfoParams `json:"params"`
}

type accountInfoResponse struct {
	Result *struct {
		AccountData *struct {
			Balance jsoniter.RawMessage `json:"Balance"`
		} `json:"account_data"`
		LedgerIndex  jsoniter.RawMessage `json:"ledger_index"`
		Status       string              `json:"status"`
		Error        string              `json:"error"`
		ErrorMessage string              `json:"error_message"`
	} `json:"result"`
}

// RippledClient implements port.LedgerClient against one rippled JSON-RPC endpoint.
type RippledClient struct {
	client   *fasthttp.Client
	endpoint entity.LedgerEndpoint
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewRippledClient creates a client for endpoint. limiter and m may be nil.
func NewRippledClient(
	httpClient *fasthttp.Client,
	endpoint entity.LedgerEndpoint,
	timeout time.Duration,
	limiter *rate.Limiter,
	logger *zap.Logger,
	m *metrics.Metrics,
) *RippledClient {
	if httpClient == nil {
		httpClient = &fasthttp.Client{}
	}
	return &RippledClient{
		client:   httpClient,
		endpoint: endpoint,
		timeout:  timeout,
		limiter:  limiter,
		logger:   logger.Named("RippledClient").With(zap.String("endpoint", endpoint.Label())),
		metrics:  m,
	}
}

// Endpoint returns the endpoint this client queries.
func (c *RippledClient) Endpoint() entity.LedgerEndpoint {
	return c.endpoint
}

// AccountBalance issues one account_info request for the validated ledger.
func (c *RippledClient) AccountBalance(ctx context.Context, address string) (entity.AccountBalance, error) {
	start := time.Now()
	balance, err := c.accountBalance(ctx, address)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = entity.KindOf(err).String()
	case !balance.Found:
		outcome = "not_found"
	}
	c.metrics.ObserveLedgerRequest(c.endpoint.Label(), outcome, time.Since(start))
	return balance, err
}

func (c *RippledClient) accountBalance(ctx context.Context, address string) (entity.AccountBalance, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return entity.AccountBalance{}, c.fail(entity.ErrorNetworkTimeout, fmt.Errorf("rate limiter: %w", err))
		}
	}
	if err := ctx.Err(); err != nil {
		return entity.AccountBalance{}, c.fail(entity.ErrorNetworkTimeout, err)
	}

	body, err := json.Marshal(accountInfoRequest{
		Method: "account_info",
		Params: []accountInfoParams{{Account: address, LedgerIndex: "validated", Strict: true}},
	})
	if err != nil {
		return entity.AccountBalance{}, c.fail(entity.ErrorMalformedResponse, fmt.Errorf("encode request: %w", err))
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(c.endpoint.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBodyRaw(body)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	c.logger.Debug("Requesting account_info", zap.String("address", address))
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return entity.AccountBalance{}, c.fail(entity.ErrorNetworkTimeout, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Warn("account_info returned non-200 status",
			zap.String("address", address),
			zap.Int("statusCode", resp.StatusCode()))
		return entity.AccountBalance{}, c.fail(entity.ErrorMalformedResponse, fmt.Errorf("unexpected status %d", resp.StatusCode()))
	}

	return c.decode(address, resp.Body())
}

func (c *RippledClient) decode(address string, raw []byte) (entity.AccountBalance, error) {
	var parsed accountInfoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return entity.AccountBalance{}, c.fail(entity.ErrorMalformedResponse, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Result == nil {
		return entity.AccountBalance{}, c.fail(entity.ErrorMalformedResponse, errors.New("response has no result"))
	}

	result := parsed.Result
	if result.Error == rippledAccountNotFound {
		c.logger.Debug("Account not found on ledger", zap.String("address", address))
		return entity.AccountBalance{Address: address, Found: false}, nil
	}
	if result.Error != "" {
		return entity.AccountBalance{}, c.fail(entity.ErrorMalformedResponse,
			fmt.Errorf("rippled error %s: %s", result.Error, result.ErrorMessage))
	}
	if result.AccountData == nil || len(result.AccountData.Balance) == 0 {
		return entity.AccountBalance{}, c.fail(entity.ErrorMalformedResponse, errors.New("response has no account_data.Balance"))
	}

	drops, err := utils.ParseMinorUnits(unquote(result.AccountData.Balance))
	if err != nil {
		return entity.AccountBalance{}, c.fail(entity.ErrorMalformedResponse, fmt.Errorf("account_data.Balance: %w", err))
	}

	var ledgerIndex uint32
	if v, err := strconv.ParseUint(unquote(result.LedgerIndex), 10, 32); err == nil {
		ledgerIndex = uint32(v)
	}
	return entity.AccountBalance{Address: address, Drops: drops, Found: true, LedgerIndex: ledgerIndex}, nil
}

// fail wraps err as a LookupError. Any transport failure, not only a deadline, counts as a timeout
// for fallback purposes; the log keeps the distinction.
func (c *RippledClient) fail(kind entity.ErrorKind, err error) error {
	c.logger.Debug("account_info attempt failed",
		zap.String("kind", kind.String()),
		zap.Bool("deadline", isTimeout(err)),
		zap.Error(err))
	return entity.NewLookupError(kind, c.endpoint.Label(), err)
}

// unquote accepts both "123" and 123 forms of a JSON scalar.
func unquote(raw jsoniter.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

func isTimeout(err error) bool {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
