// Package rbac notifies the role service about newly registered users.
package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/upb/auth-service/config"
	"github.com/upb/auth-service/models"
	"go.uber.org/zap"
)

// RegisterRequest is the body sent to the role service
type RegisterRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Client posts user registrations to the role service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a role service client. An empty service URL yields a
// client whose RegisterUser is a no-op.
func NewClient(cfg config.RBACConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.ServiceURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether a role service is configured
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// RegisterUser registers user with the role service
func (c *Client) RegisterUser(ctx context.Context, user *models.User) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(RegisterRequest{
		UserID:      user.ID.String(),
		Email:       user.Email,
		Name:        user.Name,
		IsSuperuser: user.IsSuperuser,
	})
	if err != nil {
		return fmt.Errorf("marshal register request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/register", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("register request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("role service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	c.logger.Info("user registered with role service", zap.String("user_id", user.ID.String()))
	return nil
}
