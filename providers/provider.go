// Package providers defines the language-model collaborator contract and the
// retry/fallback policy wrapped around it.
//
// The concrete backends (a local model server, a cloud API) live outside this
// module; they implement the Provider interface and surface transport
// failures through the typed errors in this package so the retry policy can
// classify them. The Client adds bounded exponential-backoff retry, a
// consent-gated cloud execution path, chunk summarization for the context
// builder, and structured deal-analysis generation with response validation.
package providers

import "context"

// Message is one chat message in a model request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request to a model backend.
type Request struct {
	Messages    []Message
	Temperature float64
}

// Provider generates a completion for a request. Implementations should
// return *ConnectionError for transport-level failures and *StatusError for
// server-side error responses so the retry policy can classify them.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}
