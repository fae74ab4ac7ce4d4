package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gateway statuses. Everything outside the terminal set is an in-progress
// status surfaced to the sender as a progress update.
const (
	StatusCompleted      = "Completed"
	StatusFailed         = "Failed"
	StatusInvalidAccount = "InvalidAccount"
)

func terminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusInvalidAccount:
		return true
	}
	return false
}

type GatewayRequest struct {
	AccountNumber string          `json:"accountNumber"`
	RoutingNumber string          `json:"routingNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Ref           string          `json:"ref"`
}

type GatewayResponse struct {
	OK            bool   `json:"ok"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

// Gateway is the external domestic-transfer network. Initiate is idempotent
// on Ref; Progress polls the transfer the Ref identifies.
type Gateway interface {
	Initiate(ctx context.Context, req GatewayRequest) (GatewayResponse, error)
	Progress(ctx context.Context, ref string) (GatewayResponse, error)
}

// HTTPGateway talks JSON to the gateway over HTTP with transport-level
// retries. Business failures come back as OK=false and are not retried here;
// the circuit breaker owns that policy.
type HTTPGateway struct {
	baseURL string
	client  *retryablehttp.Client
}

func NewHTTPGateway(baseURL string, log *zap.Logger) *HTTPGateway {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil
	if log != nil {
		client.Logger = zapLeveledLogger{log.Named("gateway")}
	}
	return &HTTPGateway{baseURL: baseURL, client: client}
}

func (g *HTTPGateway) Initiate(ctx context.Context, req GatewayRequest) (GatewayResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return GatewayResponse{}, fmt.Errorf("marshal transfer request: %w", err)
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return GatewayResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return g.do(httpReq)
}

func (g *HTTPGateway) Progress(ctx context.Context, ref string) (GatewayResponse, error) {
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/transfers/"+ref, nil)
	if err != nil {
		return GatewayResponse{}, err
	}
	return g.do(httpReq)
}

func (g *HTTPGateway) do(req *retryablehttp.Request) (GatewayResponse, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return GatewayResponse{}, fmt.Errorf("gateway call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return GatewayResponse{}, fmt.Errorf("gateway call: status %d", resp.StatusCode)
	}
	var out GatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GatewayResponse{}, fmt.Errorf("decode gateway response: %w", err)
	}
	return out, nil
}

// zapLeveledLogger adapts zap to retryablehttp's leveled logger.
type zapLeveledLogger struct {
	log *zap.Logger
}

func (l zapLeveledLogger) Error(msg string, kv ...any) { l.log.Sugar().Errorw(msg, kv...) }
func (l zapLeveledLogger) Info(msg string, kv ...any)  { l.log.Sugar().Infow(msg, kv...) }
func (l zapLeveledLogger) Debug(msg string, kv ...any) { l.log.Sugar().Debugw(msg, kv...) }
func (l zapLeveledLogger) Warn(msg string, kv ...any)  { l.log.Sugar().Warnw(msg, kv...) }
