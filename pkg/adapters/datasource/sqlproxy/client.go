// Package sqlproxy executes report-store commands through an HTTP execute
// endpoint instead of a direct SQL Server connection.
package sqlproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/logging"
	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for the execute endpoint.
const DefaultTimeout = 60 * time.Second

// Config addresses the execute endpoint.
type Config struct {
	ExecuteURL   string
	AuthUser     string
	AuthPassword string
}

// FromArgs creates a Config from policy connection arguments.
func FromArgs(args models.ConnectionArgs) (*Config, error) {
	cfg := &Config{
		ExecuteURL:   args.String("execute_url"),
		AuthUser:     args.String("auth_user"),
		AuthPassword: args.String("auth_password"),
	}
	if cfg.ExecuteURL == "" {
		return nil, fmt.Errorf("execute_url is required")
	}
	return cfg, nil
}

// Client posts commands to the execute endpoint.
type Client struct {
	config     *Config
	httpClient *http.Client
	retry      *retry.Config
	logger     *zap.Logger
}

// NewClient creates a proxy client. A nil httpClient uses DefaultTimeout.
func NewClient(cfg *Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		retry:      retry.DefaultConfig(),
		logger:     logger,
	}
}

type executeRequest struct {
	Command string `json:"command"`
}

// Execute posts {"command": command} and returns the rows in the response.
// The body of a 200 response is either a row array or {"data": [...]}.
func (c *Client) Execute(ctx context.Context, command string) ([]models.ResourceRecord, error) {
	payload, err := json.Marshal(executeRequest{Command: command})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var body []byte
	err = retry.DoIfRetryable(ctx, c.retry, func() error {
		var doErr error
		body, doErr = c.post(ctx, payload)
		return doErr
	})
	if err != nil {
		return nil, err
	}

	records, err := decodeRows(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Executed command through proxy",
		zap.String("command", logging.SanitizeQuery(command)),
		zap.Int("rows", len(records)))
	return records, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ExecuteURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.AuthUser, c.config.AuthPassword)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call execute endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Execute endpoint returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", logging.TruncateString(string(body), 512)))
		return nil, fmt.Errorf("failed execute query: status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func decodeRows(body []byte) ([]models.ResourceRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []models.ResourceRecord{}, nil
	}

	var rows []models.ResourceRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse response rows: %w", err)
		}
		return nonNil(rows), nil
	}

	var envelope struct {
		Data []models.ResourceRecord `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return nonNil(envelope.Data), nil
}

func nonNil(rows []models.ResourceRecord) []models.ResourceRecord {
	if rows == nil {
		return []models.ResourceRecord{}
	}
	return rows
}

// Close is a no-op; the client holds no connection.
func (c *Client) Close() error {
	return nil
}

// Ensure Client implements RelationalStore at compile time.
var _ datasource.RelationalStore = (*Client)(nil)
