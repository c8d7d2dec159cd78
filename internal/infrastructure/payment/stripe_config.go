package payment

import (
	"fmt"
	"strings"
)

// StripeConfig holds the credentials for Stripe API and webhook access
type StripeConfig struct {
	// SecretKey is a secret (sk_) or restricted (rk_) API key
	SecretKey string

	// WebhookSecret is the endpoint signing secret (whsec_)
	WebhookSecret string

	// MaxNetworkRetries is passed to the stripe-go backend; verification retries are handled above it
	MaxNetworkRetries int64
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if !strings.HasPrefix(c.SecretKey, "sk_") && !strings.HasPrefix(c.SecretKey, "rk_") {
		return fmt.Errorf("stripe: secret key must start with sk_ or rk_")
	}
	if c.MaxNetworkRetries < 0 {
		return fmt.Errorf("stripe: max network retries cannot be negative")
	}
	return nil
}

// IsLiveMode reports whether the key targets live data
func (c *StripeConfig) IsLiveMode() bool {
	return strings.HasPrefix(c.SecretKey, "sk_live") || strings.HasPrefix(c.SecretKey, "rk_live")
}
