package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/adapter"
	adapterredis "github.com/pithecene-io/sluice/adapter/redis"
	adapterwebhook "github.com/pithecene-io/sluice/adapter/webhook"
	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/client"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/store"
)

// loadConfig resolves the effective configuration: the YAML file when
// --config is given, then flag overrides, then defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Flags beat config file values.
	if backend := c.String("backend"); backend != "" {
		cfg.Backend.BaseURL = backend
	}
	if dir := c.String("state-dir"); dir != "" {
		cfg.State.Dir = dir
	}

	cfg.Normalize()
	return cfg, nil
}

// newBackendClient builds the backend client from resolved config.
func newBackendClient(cfg *config.Config) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout.Duration,
		Headers: cfg.Backend.Headers,
	})
}

// openStore opens the state store under the configured directory.
func openStore(cfg *config.Config, logger *log.Logger) (*store.Store, error) {
	return store.New(cfg.State.Dir, store.WithLogger(logger))
}

// buildAdapter constructs the configured turn-completed adapter.
// Returns nil when no adapter is configured.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	switch cfg.Adapter.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := adapterwebhook.DefaultRetries
		if cfg.Adapter.Retries != nil {
			retries = *cfg.Adapter.Retries
		}
		return adapterwebhook.New(adapterwebhook.Config{
			URL:     cfg.Adapter.URL,
			Headers: cfg.Adapter.Headers,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		retries := adapterredis.DefaultRetries
		if cfg.Adapter.Retries != nil {
			retries = *cfg.Adapter.Retries
		}
		return adapterredis.New(adapterredis.Config{
			URL:     cfg.Adapter.URL,
			Channel: cfg.Adapter.Channel,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %q (must be webhook or redis)", cfg.Adapter.Type)
	}
}
