package triage

import "context"

// Invoker sends one serialized request to an inference service and returns
// the raw response body. Implementations must not retry.
type Invoker interface {
	Invoke(ctx context.Context, modelID string, payload []byte) (string, error)
}
