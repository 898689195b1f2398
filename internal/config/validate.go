package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.MetaAPI.Token == "" {
		return errors.New("metaapi.token is required")
	}

	if c.Admin.Email == "" {
		return errors.New("admin.email is required")
	}
	if c.Admin.Password == "" {
		return errors.New("admin.password is required")
	}
	if c.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required")
	}

	if c.Gateway.SubscriberBuffer < 1 {
		return errors.New("gateway.subscriber_buffer must be >= 1")
	}
	if c.Gateway.ReconcileInterval < 0 {
		return errors.New("gateway.reconcile_interval must not be negative")
	}

	return nil
}
