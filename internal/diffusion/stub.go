package diffusion

import (
	"context"
	"fmt"
)

// StubRuntime refuses all work. It lets the server start (schedulers, health,
// auth and validation all work) when no worker is configured.
type StubRuntime struct {
	Reason string
}

func (s StubRuntime) err() error {
	if s.Reason == "" {
		return ErrDependencyUnavailable
	}
	return fmt.Errorf("%w: %s", ErrDependencyUnavailable, s.Reason)
}

func (s StubRuntime) Convert(ctx context.Context, req ConvertRequest) error { return s.err() }

func (s StubRuntime) Load(ctx context.Context, req LoadRequest) (Pipeline, error) {
	return nil, s.err()
}
