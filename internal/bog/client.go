package bog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultBaseURL is the production Business Online API endpoint.
	DefaultBaseURL = "https://api.businessonline.ge/api"

	requestTimeout = 30 * time.Second

	// statement dates are sent and received in the bank's local calendar
	dateLayout = "2006-01-02"
)

// Client talks to the Business Online REST API. Session negotiation and
// token refresh are owned by the caller; the client only attaches the
// bearer token it was constructed with.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client. An empty baseURL selects the production
// endpoint.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// FetchBalance retrieves the current balance of one account.
func (c *Client) FetchBalance(ctx context.Context, account Account) (*BalanceResponse, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/%s/balance",
		c.baseURL, url.PathEscape(account.ID), url.PathEscape(account.Currency))

	var balance BalanceResponse
	if err := c.getJSON(ctx, endpoint, &balance); err != nil {
		return nil, fmt.Errorf("failed to fetch balance for account %s: %w", account.ID, err)
	}
	return &balance, nil
}

// FetchStatement retrieves the statement records of one account for the
// given date range (inclusive, bank-local calendar dates).
func (c *Client) FetchStatement(ctx context.Context, account Account, from, to time.Time) (*StatementResponse, error) {
	endpoint := fmt.Sprintf("%s/statement/%s/%s?startDate=%s&endDate=%s",
		c.baseURL,
		url.PathEscape(account.ID), url.PathEscape(account.Currency),
		from.Format(dateLayout), to.Format(dateLayout))

	var statement StatementResponse
	if err := c.getJSON(ctx, endpoint, &statement); err != nil {
		return nil, fmt.Errorf("failed to fetch statement for account %s: %w", account.ID, err)
	}
	if statement.Records == nil {
		statement.Records = []Record{}
	}
	return &statement, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded snippet of the body for diagnostics.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, endpoint, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}
