// internal/common/servicerecovery/client.go
package servicerecovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	apphttp "extension-recovery/internal/common/http"
	"extension-recovery/internal/common/logger"
)

// Client asks the platform's service supervisor to restart an extension
// service.
type Client struct {
	baseURL string
	http    *apphttp.Client
	log     logger.Logger
}

type recoverRequest struct {
	Reason string `json:"reason"`
}

type recoverResponse struct {
	Recovered *bool  `json:"recovered"`
	Message   string `json:"message,omitempty"`
}

// New creates a client against baseURL. token may be empty.
func New(baseURL, token string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    apphttp.NewClient(timeout).WithBearerToken(token),
		log:     log,
	}
}

// ForceRecovery triggers a restart of serviceName and reports whether the
// supervisor confirmed it. A 2xx response without a body counts as recovered.
func (c *Client) ForceRecovery(ctx context.Context, serviceName string) (bool, error) {
	endpoint := fmt.Sprintf("%s/services/%s/recover", c.baseURL, url.PathEscape(serviceName))

	var resp recoverResponse
	status, err := c.http.PostJSON(ctx, endpoint, recoverRequest{Reason: "extension_error_recovery"}, &resp)
	if err != nil {
		c.log.Warn("Service recovery request failed", map[string]interface{}{
			"service": serviceName,
			"status":  status,
			"error":   err.Error(),
		})
		return false, err
	}

	recovered := resp.Recovered == nil || *resp.Recovered
	c.log.Info("Service recovery requested", map[string]interface{}{
		"service":   serviceName,
		"recovered": recovered,
		"message":   resp.Message,
	})
	return recovered, nil
}
