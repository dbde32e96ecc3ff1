package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMeterProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty endpoint", func(t *testing.T) {
		t.Parallel()

		p, err := NewMeterProvider(ctx, "  ", "theshop-test")
		require.NoError(t, err)
		require.NotNil(t, p.MeterProvider)
		require.NoError(t, p.Shutdown(ctx))
	})

	t.Run("missing host", func(t *testing.T) {
		t.Parallel()

		_, err := NewMeterProvider(ctx, "http://", "theshop-test")
		require.Error(t, err)
	})

	t.Run("host without scheme", func(t *testing.T) {
		t.Parallel()

		p, err := NewMeterProvider(ctx, "localhost:4317", "theshop-test")
		require.NoError(t, err)
		require.NotNil(t, p.MeterProvider)

		// Nothing listens; shutdown only has to return.
		shutdownCtx, cancel := context.WithCancel(ctx)
		cancel()
		_ = p.Shutdown(shutdownCtx)
	})
}
