package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoURL is returned when the client is built without a target URL.
var ErrNoURL = errors.New("webhook url is empty")

// Notifier posts text notifications to a chat webhook.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Client is a resty-backed implementation of Notifier. The target accepts
// Slack-style {"text": ...} payloads.
type Client struct {
	httpClient *resty.Client
	url        string
}

// NewClient builds a webhook client posting to url.
func NewClient(url string) (*Client, error) {
	if url == "" {
		return nil, ErrNoURL
	}

	restyClient := resty.New()
	restyClient.
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &Client{httpClient: restyClient, url: url}, nil
}

type message struct {
	Text string `json:"text"`
}

// apiError is the error payload returned by common chat webhooks.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Notify sends text to the webhook.
func (c *Client) Notify(ctx context.Context, text string) error {
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(message{Text: text}).
		SetError(apiErr).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		detail := apiErr.Message
		if detail == "" {
			detail = apiErr.Error
		}
		if detail == "" {
			detail = resp.String()
		}
		return fmt.Errorf("webhook error: status=%d, message=%s", resp.StatusCode(), detail)
	}

	return nil
}
