package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectProducesValidSnapshot(t *testing.T) {
	snapshot := collect(context.Background())
	require.NoError(t, snapshot.Validate())
}

func TestCollectCPUReportsCoreCount(t *testing.T) {
	info := collectCPU(context.Background())
	require.Greater(t, info.Total, 0)
	require.NotEmpty(t, info.Arch)
}

func TestCPUCoreNaming(t *testing.T) {
	require.Equal(t, "cpu0", cpuCoreName(0))
	require.Equal(t, "cpu12", cpuCoreName(12))
}
