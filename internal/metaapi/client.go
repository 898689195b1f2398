package metaapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClientConfig configures the provisioning client.
type ClientConfig struct {
	Token           string        // MetaApi auth token
	ProvisioningURL string        // REST base URL
	StreamingURL    string        // WebSocket base URL for streaming connections
	PollInterval    time.Duration // Pace for WaitConnected polling
	MaxRetries      int           // Retries for transient REST failures
}

// Client is the provisioning REST client. It implements API.
type Client struct {
	http   *resty.Client
	cfg    ClientConfig
	logger *slog.Logger
}

// APIError is an error response from the provisioning API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("metaapi error %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a provisioning client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	http := resty.New().
		SetBaseURL(cfg.ProvisioningURL).
		SetHeader("Accept", "application/json").
		SetHeader("auth-token", cfg.Token).
		SetTimeout(30 * time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	return &Client{http: http, cfg: cfg, logger: logger}
}

// accountDTO is the provisioning API wire format for one account.
type accountDTO struct {
	ID               string `json:"_id"`
	Name             string `json:"name"`
	Login            string `json:"login"`
	Server           string `json:"server"`
	Platform         string `json:"platform"`
	State            string `json:"state"`
	ConnectionStatus string `json:"connectionStatus"`
}

// GetAccount resolves an account handle by id.
func (c *Client) GetAccount(ctx context.Context, id string) (Account, error) {
	dto, err := c.fetchAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &account{client: c, dto: *dto}, nil
}

// CreateAccount provisions a new account and returns its id.
func (c *Client) CreateAccount(ctx context.Context, req NewAccountRequest) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&created).
		Post("/users/current/accounts")
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return created.ID, nil
}

// ListAccounts returns accounts matching the given deployment states.
func (c *Client) ListAccounts(ctx context.Context, states ...string) ([]AccountSummary, error) {
	var accounts []AccountSummary
	req := c.http.R().SetContext(ctx).SetResult(&accounts)
	for _, state := range states {
		req.SetQueryParam("state", state)
	}
	resp, err := req.Get("/users/current/accounts")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return accounts, nil
}

func (c *Client) fetchAccount(ctx context.Context, id string) (*accountDTO, error) {
	var dto accountDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&dto).
		Get("/users/current/accounts/" + id)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	if resp.StatusCode() == 404 {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return &dto, nil
}

func (c *Client) postAccountAction(ctx context.Context, id, action string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post("/users/current/accounts/" + id + "/" + action)
	if err != nil {
		return fmt.Errorf("%s account %s: %w", action, id, err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}

// account implements Account over the provisioning client.
type account struct {
	client *Client
	dto    accountDTO

	mu     sync.Mutex
	stream StreamingConnection
}

func (a *account) ID() string       { return a.dto.ID }
func (a *account) Name() string     { return a.dto.Name }
func (a *account) Login() string    { return a.dto.Login }
func (a *account) Server() string   { return a.dto.Server }
func (a *account) Platform() string { return a.dto.Platform }
func (a *account) State() string    { return a.dto.State }

func (a *account) Deploy(ctx context.Context) error {
	return a.client.postAccountAction(ctx, a.dto.ID, "deploy")
}

func (a *account) Undeploy(ctx context.Context) error {
	return a.client.postAccountAction(ctx, a.dto.ID, "undeploy")
}

// WaitConnected polls the provisioning API until the broker-side connection
// is established. There is no timeout of its own; callers bound it with ctx.
func (a *account) WaitConnected(ctx context.Context) error {
	for {
		dto, err := a.client.fetchAccount(ctx, a.dto.ID)
		if err == nil {
			a.dto.State = dto.State
			a.dto.ConnectionStatus = dto.ConnectionStatus
			if dto.State == StateDeployed && dto.ConnectionStatus == ConnectionStatusConnected {
				return nil
			}
		} else {
			a.client.logger.Debug("wait connected poll failed",
				"account_id", a.dto.ID,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.client.cfg.PollInterval):
		}
	}
}

func (a *account) StreamingConnection() StreamingConnection {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream == nil {
		a.stream = NewStream(StreamConfig{
			URL:       a.client.cfg.StreamingURL,
			Token:     a.client.cfg.Token,
			AccountID: a.dto.ID,
		}, a.client.logger.With("account_id", a.dto.ID))
	}
	return a.stream
}
