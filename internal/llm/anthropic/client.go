// Package anthropic invokes Claude models through the Anthropic Messages API
// directly, for deployments without Bedrock access.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/linnemanlabs/go-core/xerrors"
)

// ErrUnsupportedRequest is returned for payloads that are not Claude 3
// Messages bodies, such as the legacy completion or Nova shapes.
var ErrUnsupportedRequest = errors.New("request body is not a messages request")

// APIError is a non-2xx answer from the Messages API.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic api status %d: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// ErrorCode reports the HTTP status as a metrics label, e.g. "http_429".
func (e *APIError) ErrorCode() string { return fmt.Sprintf("http_%d", e.StatusCode) }

// Options configures a Client.
type Options struct {
	APIKey string
	// Model is the native model name sent to the API. The model identifier
	// passed to Invoke only selects the request shape.
	Model string
	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string
}

// Client implements triage.Invoker against the Messages API.
type Client struct {
	sdk   anthropic.Client
	model string
}

// New creates a client. SDK retries are disabled; a failed call is final.
func New(opts Options) *Client {
	if opts.APIKey == "" {
		panic(xerrors.New("anthropic api key is required"))
	}
	if opts.Model == "" {
		panic(xerrors.New("anthropic model is required"))
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Client{
		sdk:   anthropic.NewClient(reqOpts...),
		model: opts.Model,
	}
}

// Invoke rewrites a Bedrock-style Claude 3 body for the Messages API and
// returns the raw response JSON, which has the same envelope Bedrock
// returns for Claude 3.
func (c *Client) Invoke(ctx context.Context, _ string, payload []byte) (string, error) {
	body, err := c.rewrite(payload)
	if err != nil {
		return "", err
	}

	var raw json.RawMessage
	if err := c.sdk.Post(ctx, "v1/messages", json.RawMessage(body), &raw); err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &APIError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("post messages: %w", err)
	}
	return string(raw), nil
}

func (c *Client) rewrite(payload []byte) ([]byte, error) {
	if !gjson.ValidBytes(payload) ||
		!gjson.GetBytes(payload, "messages").IsArray() ||
		!gjson.GetBytes(payload, "max_tokens").Exists() {
		return nil, ErrUnsupportedRequest
	}
	body, err := sjson.DeleteBytes(payload, "anthropic_version")
	if err != nil {
		return nil, fmt.Errorf("rewrite request: %w", err)
	}
	body, err = sjson.SetBytes(body, "model", c.model)
	if err != nil {
		return nil, fmt.Errorf("rewrite request: %w", err)
	}
	return body, nil
}
