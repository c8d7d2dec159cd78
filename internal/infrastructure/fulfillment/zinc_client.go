package fulfillment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/fulfillment"
	"github.com/elyphant/backend/internal/domain/order"
)

const (
	maxResponseSize = 1 << 20

	zincTypeOrderResponse = "order_response"
	zincTypeError         = "error"
	zincCodeProcessing    = "request_processing"
)

// ZincClient looks up orders on the Zinc API
type ZincClient struct {
	config     *ZincConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ fulfillment.Client = (*ZincClient)(nil)

// NewZincClient creates a Zinc client. A nil httpClient gets one with the configured timeout.
func NewZincClient(config *ZincConfig, httpClient *http.Client, logger *zap.Logger) (*ZincClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZincClient{config: config, httpClient: httpClient, logger: logger}, nil
}

// GetOrder issues GET /orders/{id} and maps the response to a zinc_status
func (c *ZincClient) GetOrder(ctx context.Context, zincOrderID string) (*fulfillment.OrderStatus, error) {
	if strings.TrimSpace(zincOrderID) == "" {
		return nil, fmt.Errorf("%w: zinc order id is required", fulfillment.ErrUpstreamRejected)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/orders/" + url.PathEscape(zincOrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("zinc: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientToken, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("zinc: request aborted: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", fulfillment.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", fulfillment.ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", fulfillment.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("%w: HTTP %d", fulfillment.ErrUpstreamRejected, resp.StatusCode)
	}

	status, err := ParseOrderResponse(body)
	if err != nil {
		return nil, err
	}
	status.ZincOrderID = zincOrderID

	c.logger.Debug("Fetched Zinc order",
		zap.String("zinc_order_id", zincOrderID),
		zap.String("zinc_status", status.Status),
		zap.Bool("has_tracking", status.TrackingNumber != ""))

	return status, nil
}

// ParseOrderResponse maps a Zinc order body to a local zinc_status
func ParseOrderResponse(body []byte) (*fulfillment.OrderStatus, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", fulfillment.ErrUpstreamRejected)
	}
	doc := gjson.ParseBytes(body)

	switch doc.Get("_type").String() {
	case zincTypeOrderResponse:
		out := &fulfillment.OrderStatus{Status: order.ZincStatusPlaced}
		out.TrackingNumber, out.Carrier = trackingOf(doc)
		if out.TrackingNumber != "" {
			out.Status = order.ZincStatusShipped
		}
		if isDelivered(doc) {
			out.Status = order.ZincStatusDelivered
		}
		return out, nil

	case zincTypeError:
		code := doc.Get("code").String()
		if code == zincCodeProcessing {
			return &fulfillment.OrderStatus{Status: order.ZincStatusProcessing}, nil
		}
		return &fulfillment.OrderStatus{
			Status:       order.ZincStatusFailed,
			ErrorCode:    code,
			ErrorMessage: doc.Get("message").String(),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unexpected _type %q", fulfillment.ErrUpstreamRejected, doc.Get("_type").String())
	}
}

// trackingOf prefers tracking[0], then the first merchant order carrying a number
func trackingOf(doc gjson.Result) (number, carrier string) {
	if n := doc.Get("tracking.0.tracking_number").String(); n != "" {
		return n, doc.Get("tracking.0.carrier").String()
	}
	for _, m := range doc.Get("merchant_order_ids").Array() {
		if n := m.Get("tracking_number").String(); n != "" {
			return n, m.Get("carrier").String()
		}
	}
	return "", ""
}

func isDelivered(doc gjson.Result) bool {
	for _, t := range doc.Get("tracking").Array() {
		if strings.EqualFold(t.Get("delivery_status").String(), "delivered") {
			return true
		}
	}
	return false
}
