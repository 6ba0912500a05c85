// Package bedrock invokes models through the Amazon Bedrock runtime.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/linnemanlabs/go-core/xerrors"
)

const contentType = "application/json"

// API is the subset of the Bedrock runtime client used by Client.
type API interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client implements triage.Invoker on top of InvokeModel.
type Client struct {
	api API
}

// New wraps a runtime client. The client should be built with retries
// disabled; a failed call is final.
func New(api API) *Client {
	if api == nil {
		panic(xerrors.New("bedrock runtime client is required"))
	}
	return &Client{api: api}
}

// Invoke sends payload to modelID and returns the response body as text.
// Errors wrap the SDK error, so the smithy.APIError stays reachable with
// errors.As.
func (c *Client) Invoke(ctx context.Context, modelID string, payload []byte) (string, error) {
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        payload,
		ContentType: aws.String(contentType),
		Accept:      aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}
	return string(out.Body), nil
}
