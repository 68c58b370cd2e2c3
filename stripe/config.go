package stripe

import "fmt"

// DefaultCurrency is the currency charged when the payment does not set one.
const DefaultCurrency = "krw"

// Config holds the Stripe configuration.
type Config struct {
	APIKey        string `yaml:"api_key" json:"api_key"`
	WebhookSecret string `yaml:"webhook_secret" json:"webhook_secret"`
	// BackendURL overrides the Stripe API endpoint, used by tests.
	BackendURL string `yaml:"backend_url" json:"backend_url"`
}

// Validate checks that the secrets are set.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return NewStripeError(ErrInvalidConfiguration.Code, "stripe API key is required", nil)
	}
	if c.WebhookSecret == "" {
		return NewStripeError(ErrInvalidConfiguration.Code, "stripe webhook secret is required", nil)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("stripe config (backend: %q, webhook secret set: %t)", c.BackendURL, c.WebhookSecret != "")
}
