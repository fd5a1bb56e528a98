package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint, used by tests.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      "https://api.postmarkapp.com/email",
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendVerificationCode delivers a one-time code to a contact.
func (c *Client) SendVerificationCode(ctx context.Context, toEmail, code, purpose string, ttl time.Duration) error {
	subject := "Your Clubdesk verification code"
	if purpose == "admin_invitation" {
		subject = "Your Clubdesk admin verification code"
	}
	minutes := int(ttl.Minutes())

	textBody := fmt.Sprintf("Your verification code is %s.\n\nIt expires in %d minutes.", code, minutes)
	htmlBody := fmt.Sprintf(
		`<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>`,
		code, minutes,
	)
	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

// SendInvitation delivers an invitation link embedding the signed token.
func (c *Client) SendInvitation(ctx context.Context, toEmail, token, householdName string) error {
	link := fmt.Sprintf("%s/invitations/accept?token=%s", c.baseURL, token)

	subject := "You've been invited on Clubdesk"
	if householdName != "" {
		subject = fmt.Sprintf("You've been invited to %s on Clubdesk", householdName)
	}
	textBody := fmt.Sprintf("Click the link below to accept your invitation:\n\n%s", link)
	htmlBody := fmt.Sprintf(
		`<p>Click the link below to accept your invitation:</p><p><a href="%s">Accept invitation</a></p>`,
		link,
	)
	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

// send posts to Postmark, retrying transient failures with capped backoff.
// 4xx responses are permanent; network errors and 5xx are retried.
func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Postmark-Server-Token", c.serverToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("send email: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("postmark API error: status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
		}
		return nil
	})
}
