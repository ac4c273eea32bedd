// Messaging orchestrator client: message history, contacts and resolution callbacks
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
)

const orchestratorService = "orchestrator"

// Orchestrator is the external messaging system that owns message content.
type Orchestrator interface {
	GetRecentMessages(ctx context.Context, externalID string, limit int) ([]models.Message, error)
	// NotifyResolution is best-effort; failures are logged, never returned.
	NotifyResolution(ctx context.Context, externalID string)
	GetConversationHistory(ctx context.Context, externalID string, page, limit int) (*models.ConversationHistory, error)
	GetContactInfo(ctx context.Context, customerID string) (models.Contact, error)
}

var errOrchestratorNotConfigured = errors.New("orchestrator base URL not configured")

// OrchestratorClient talks to the orchestrator's REST API.
type OrchestratorClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOrchestratorClient creates a client. An empty baseURL yields a client
// whose calls fail with ExternalServiceError.
func NewOrchestratorClient(baseURL string, timeout time.Duration) *OrchestratorClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OrchestratorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  utils.GetLogger(),
	}
}

var _ Orchestrator = (*OrchestratorClient)(nil)

func (c *OrchestratorClient) GetRecentMessages(ctx context.Context, externalID string, limit int) ([]models.Message, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(externalID)+"/messages/recent", q, &body); err != nil {
		return nil, err
	}
	c.logger.Debug("Retrieved recent messages from orchestrator", "externalConversationId", externalID, "count", len(body.Messages))
	return body.Messages, nil
}

func (c *OrchestratorClient) NotifyResolution(ctx context.Context, externalID string) {
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(externalID)+"/resolved", nil, nil); err != nil {
		c.logger.Warn("Failed to notify orchestrator of resolution", "externalConversationId", externalID, "error", err)
		return
	}
	c.logger.Info("Notified orchestrator of conversation resolution", "externalConversationId", externalID)
}

func (c *OrchestratorClient) GetConversationHistory(ctx context.Context, externalID string, page, limit int) (*models.ConversationHistory, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	q := url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}}
	var history models.ConversationHistory
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(externalID)+"/history", q, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

func (c *OrchestratorClient) GetContactInfo(ctx context.Context, customerID string) (models.Contact, error) {
	var contact json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(customerID), nil, &contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// do sends one request and decodes a 2xx JSON body into out (if non-nil).
// Every failure is an ExternalServiceError.
func (c *OrchestratorClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	if c.baseURL == "" {
		return NewExternalServiceError(orchestratorService, errOrchestratorNotConfigured)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return NewExternalServiceError(orchestratorService, err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return NewExternalServiceError(orchestratorService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewExternalServiceError(orchestratorService,
			fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewExternalServiceError(orchestratorService, fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}
