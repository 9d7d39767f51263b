package provider

import (
	"context"

	"github.com/movemate-io/movemate/pkg/protocol"
)

// Provider is the abstraction over LLM chat APIs.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}
