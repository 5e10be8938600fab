package cli

import (
	"context"
	"errors"
	"fmt"

	"youwin-client/internal/bootstrap"
	"youwin-client/internal/config"
)

// loadContainer reads and validates configuration, then wires dependencies.
func loadContainer(ctx context.Context) (*bootstrap.Container, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return bootstrap.NewContainer(ctx, cfg)
}

// withSession runs fn while the session loop is serving, then stops the loop
// and releases every resource.
func withSession(ctx context.Context, fn func(ctx context.Context, c *bootstrap.Container) error) error {
	c, err := loadContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	if err := c.Consumer.Consume(ctx); err != nil {
		c.Logger.Warn("CLI", "Event consumer not started", map[string]interface{}{"error": err.Error()})
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- c.Session.Run(ctx)
	}()

	fnErr := fn(ctx, c)

	c.Session.Stop()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return errors.Join(fnErr, fmt.Errorf("session loop: %w", err))
	}
	return fnErr
}
