package llm

import (
	"context"
	"fmt"

	"github.com/appliance-labs/debate-platform/pkg/logger"
	"github.com/appliance-labs/debate-platform/pkg/metrics"
	"go.uber.org/zap"
)

// Failover decorates a primary provider with an optional secondary. On a
// primary failure it retries exactly once against the secondary with
// identical arguments. Secondary may be nil, in which case primary errors
// pass through.
type Failover struct {
	primary   Client
	secondary Client
	log       *logger.Logger
}

// NewFailover wires a primary and optional secondary provider.
func NewFailover(primary, secondary Client, log *logger.Logger) *Failover {
	return &Failover{primary: primary, secondary: secondary, log: log}
}

// Name returns the composite provider name.
func (f *Failover) Name() string {
	if f.secondary != nil {
		return fmt.Sprintf("%s+%s", f.primary.Name(), f.secondary.Name())
	}
	return f.primary.Name()
}

// SupportsStreaming reports the primary provider's capability.
func (f *Failover) SupportsStreaming() bool {
	return f.primary.SupportsStreaming()
}

// Complete tries the primary and falls back once to the secondary.
func (f *Failover) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := f.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if f.secondary == nil {
		return nil, err
	}

	f.log.Warn("primary provider failed, retrying on secondary",
		zap.String("primary", f.primary.Name()),
		zap.String("secondary", f.secondary.Name()),
		zap.Error(err),
	)
	metrics.LLMFallbacksTotal.WithLabelValues(f.primary.Name()).Inc()

	resp, ferr := f.secondary.Complete(ctx, req)
	if ferr != nil {
		return nil, fmt.Errorf("both providers failed: primary: %v, secondary: %w", err, ferr)
	}
	return resp, nil
}

// CompleteStream streams from the selected provider, synthesizing a
// single-token stream when the provider cannot stream. The fallback attempt
// is always synthesized: partial tokens may already have been emitted by the
// failed primary, and the authoritative message frame supersedes them.
func (f *Failover) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	var resp *CompletionResponse
	var err error

	if f.primary.SupportsStreaming() {
		resp, err = f.primary.CompleteStream(ctx, req, callback)
	} else {
		resp, err = f.primary.Complete(ctx, req)
		if err == nil {
			if cbErr := callback(resp.Content, 0); cbErr != nil {
				return nil, cbErr
			}
		}
	}
	if err == nil {
		return resp, nil
	}
	if f.secondary == nil {
		return nil, err
	}

	f.log.Warn("primary provider stream failed, retrying on secondary",
		zap.String("primary", f.primary.Name()),
		zap.String("secondary", f.secondary.Name()),
		zap.Error(err),
	)
	metrics.LLMFallbacksTotal.WithLabelValues(f.primary.Name()).Inc()

	resp, ferr := f.secondary.Complete(ctx, req)
	if ferr != nil {
		return nil, fmt.Errorf("both providers failed: primary: %v, secondary: %w", err, ferr)
	}
	if cbErr := callback(resp.Content, 0); cbErr != nil {
		return nil, cbErr
	}
	return resp, nil
}
