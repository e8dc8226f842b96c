package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	shutdown, err = Setup(context.Background(), &types.TelemetryConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, DefaultServiceName, ServiceName(nil))
	assert.Equal(t, "wastecal-worker", ServiceName(&types.TelemetryConfig{ServiceName: "wastecal-worker"}))
}
