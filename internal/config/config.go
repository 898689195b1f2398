// Package config loads the gateway configuration from YAML with
// environment variable expansion, defaults, and validation.
package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Server  ServerConfig  `yaml:"server"`
	MetaAPI MetaAPIConfig `yaml:"metaapi"`
	Admin   AdminConfig   `yaml:"admin"`
	Gateway SettingsConfig `yaml:"gateway"`
}

// ServerConfig holds the HTTP/WebSocket boundary settings.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"` // Frontend origin allowed to call the API
}

// MetaAPIConfig holds MetaApi cloud service settings.
type MetaAPIConfig struct {
	Token           string        `yaml:"token"`
	ProvisioningURL string        `yaml:"provisioning_url"`
	StreamingURL    string        `yaml:"streaming_url"`
	PollInterval    time.Duration `yaml:"poll_interval"` // Pace of deploy/connect status polling
	MaxRetries      int           `yaml:"max_retries"`
}

// AdminConfig holds the single administrative identity.
type AdminConfig struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	JWTSecret string `yaml:"jwt_secret"`
}

// SettingsConfig holds connection manager settings.
type SettingsConfig struct {
	DefaultAccountID  string        `yaml:"default_account_id"` // Connected at startup when set
	ReconcileInterval time.Duration `yaml:"reconcile_interval"` // 0 disables the periodic reconcile
	SubscriberBuffer  int           `yaml:"subscriber_buffer"`  // Outbound queue per observer
}
