package e2e

import (
	"context"
	"sync"

	"github.com/mycoool/webhook-ui/internal/config"
)

var (
	defaultOnce    sync.Once
	defaultHarness *Harness
	defaultErr     error
)

// Default returns the harness configured from the environment.
func Default() (*Harness, error) {
	defaultOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			defaultErr = err
			return
		}
		defaultHarness, defaultErr = New(cfg)
	})
	return defaultHarness, defaultErr
}

// NewPluginDir builds plugins with the default harness.
func NewPluginDir(ctx context.Context, plugins ...string) (string, error) {
	h, err := Default()
	if err != nil {
		return "", err
	}
	return h.NewPluginDir(ctx, plugins...)
}

// NewTest starts an instance with the default harness.
func NewTest(ctx context.Context, pluginsDir string) (*GoHookTest, error) {
	h, err := Default()
	if err != nil {
		return nil, err
	}
	return h.NewTest(ctx, pluginsDir)
}

// Shutdown tears down the default harness, if it was ever created.
func Shutdown() error {
	if defaultHarness == nil {
		return nil
	}
	return defaultHarness.Shutdown()
}
