package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrUnavailable marks a provider that is not configured. It is never retried.
var ErrUnavailable = errors.New("ai provider unavailable")

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
}

type embedder struct {
	provider IEmbedProvider
	model    string
	retry    RetryPolicy
}

func NewEmbedder(p IEmbedProvider, model string, policy RetryPolicy) IEmbedder {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	return &embedder{provider: p, model: model, retry: policy}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var out []float32
	err := retry.Do(
		func() error {
			res, err := e.provider.Embed(ctx, e.model, text, taskType)
			if err != nil {
				return err
			}
			if len(res) == 0 {
				return fmt.Errorf("%s returned an empty embedding", e.provider.Name())
			}
			out = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.retry.Attempts),
		retry.Delay(e.retry.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrUnavailable)
		}),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *embedder) ModelName() string {
	return e.provider.Name() + ":" + e.model
}

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

var embedRegistry = map[string]EmbedProviderFactory{}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("embed.provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
