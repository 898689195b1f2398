package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort             = 5001
	DefaultProvisioningURL  = "https://mt-provisioning-api-v1.agiliumtrade.agiliumtrade.ai"
	DefaultStreamingURL     = "wss://mt-client-api-v1.agiliumtrade.agiliumtrade.ai/ws"
	DefaultPollInterval     = 5 * time.Second
	DefaultMaxRetries       = 3
	DefaultSubscriberBuffer = 256
)

func (c *GatewayConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.MetaAPI.ProvisioningURL == "" {
		c.MetaAPI.ProvisioningURL = DefaultProvisioningURL
	}
	if c.MetaAPI.StreamingURL == "" {
		c.MetaAPI.StreamingURL = DefaultStreamingURL
	}
	if c.MetaAPI.PollInterval == 0 {
		c.MetaAPI.PollInterval = DefaultPollInterval
	}
	if c.MetaAPI.MaxRetries == 0 {
		c.MetaAPI.MaxRetries = DefaultMaxRetries
	}

	if c.Gateway.SubscriberBuffer == 0 {
		c.Gateway.SubscriberBuffer = DefaultSubscriberBuffer
	}
}
