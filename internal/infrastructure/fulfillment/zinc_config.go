package fulfillment

import (
	"fmt"
	"net/url"
	"time"
)

const defaultZincBaseURL = "https://api.zinc.io/v1"

// ZincConfig holds the Zinc API endpoint and credentials
type ZincConfig struct {
	// BaseURL is the API root, https://api.zinc.io/v1 unless testing
	BaseURL string

	// ClientToken is sent as the basic auth username with an empty password
	ClientToken string

	Timeout time.Duration
}

// Validate validates the Zinc configuration
func (c *ZincConfig) Validate() error {
	if c.ClientToken == "" {
		return fmt.Errorf("zinc: client token is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultZincBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("zinc: invalid base url %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}
