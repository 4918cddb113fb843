package llm

import (
	"context"
	"fmt"

	"github.com/renewmap/compass/pkg/services"
)

// DefaultServiceName is the registry name used when a single LLM backs the
// whole run.
const DefaultServiceName = "llm"

// failedCallCost is charged against the rate limit when a call fails before
// usage is known.
const failedCallCost = 100

// Request is the unit of work submitted to an LLM service.
type Request struct {
	Messages []Message
	Options  CallOptions
}

type providerService struct {
	name     string
	provider Provider
}

func (s *providerService) Name() string     { return s.name }
func (s *providerService) CanProcess() bool { return true }

func (s *providerService) Process(ctx context.Context, req any) (any, error) {
	request, ok := req.(*Request)
	if !ok {
		return nil, fmt.Errorf("unexpected request type %T", req)
	}
	return s.provider.Complete(ctx, request.Messages, request.Options)
}

// TokenCost charges completed calls their total token usage so the rolling
// window tracks tokens per minute.
func TokenCost(response any, err error) float64 {
	completion, ok := response.(*Completion)
	if !ok || completion == nil {
		return failedCallCost
	}
	return float64(completion.PromptTokens + completion.ResponseTokens)
}

// NewService wraps a provider in a rate-limited queued service. The limit is
// tokens per window; windowSeconds is typically 60.
func NewService(name string, provider Provider, tokenLimit, windowSeconds float64) services.Service {
	return services.NewRateLimited(&providerService{name: name, provider: provider}, tokenLimit, windowSeconds, TokenCost)
}

// Complete submits a transcript to the named LLM service and waits for the
// completion.
func Complete(ctx context.Context, serviceName string, messages []Message, opts CallOptions) (*Completion, error) {
	result, err := services.Call(ctx, serviceName, &Request{Messages: messages, Options: opts})
	if err != nil {
		return nil, err
	}
	completion, ok := result.(*Completion)
	if !ok {
		return nil, fmt.Errorf("unexpected completion type %T", result)
	}
	return completion, nil
}
