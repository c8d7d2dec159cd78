// Package fulfillment defines the port to the Zinc ordering API.
package fulfillment

import (
	"context"
	"errors"
)

// Errors returned by Client implementations
var (
	ErrUpstreamUnavailable = errors.New("fulfillment provider unavailable")
	ErrUpstreamRejected    = errors.New("fulfillment provider rejected request")
)

// OrderStatus is a Zinc order lookup mapped to a local zinc_status value
type OrderStatus struct {
	ZincOrderID    string
	Status         string
	TrackingNumber string
	Carrier        string
	ErrorCode      string
	ErrorMessage   string
}

// Client fetches order state from Zinc
type Client interface {
	GetOrder(ctx context.Context, zincOrderID string) (*OrderStatus, error)
}
