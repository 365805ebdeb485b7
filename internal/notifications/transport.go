package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Transport posts one text to an external destination.
type Transport interface {
	PostText(ctx context.Context, target, text string) error
}

const DefaultTelegramAPIURL = "https://api.telegram.org"

// TelegramTransport posts through the Telegram Bot API sendMessage method.
type TelegramTransport struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramTransport returns a transport for the bot identified by token.
// An empty baseURL selects the public API.
func NewTelegramTransport(token, baseURL string) *TelegramTransport {
	if baseURL == "" {
		baseURL = DefaultTelegramAPIURL
	}
	return &TelegramTransport{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type telegramSendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// PostText sends text to the chat target. Any non-2xx answer is an error.
func (t *TelegramTransport) PostText(ctx context.Context, target, text string) error {
	payload, err := json.Marshal(telegramSendMessage{
		ChatID:                target,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode telegram message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// the request URL carries the bot token
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var parsed telegramResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Description != "" {
			return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, parsed.Description)
		}
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SNSPublisher is the subset of the SNS client used by SNSTransport.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTransport publishes texts to an SNS topic; target is the topic ARN.
type SNSTransport struct {
	client  SNSPublisher
	subject string
}

func NewSNSTransport(client SNSPublisher, subject string) *SNSTransport {
	return &SNSTransport{client: client, subject: subject}
}

func (t *SNSTransport) PostText(ctx context.Context, target, text string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(target),
		Message:  aws.String(text),
	}
	if t.subject != "" {
		input.Subject = aws.String(t.subject)
	}
	if _, err := t.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("failed to publish to sns topic %s: %w", target, err)
	}
	return nil
}
