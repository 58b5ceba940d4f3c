package machine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agentfarm/internal/store"
)

func TestCollect(t *testing.T) {
	info := Collect(context.Background())

	require.NotEmpty(t, info.Hostname)
	require.NotEmpty(t, info.IP)
	require.NotEmpty(t, info.OS)
	require.Positive(t, info.CPUCores)
	require.Positive(t, info.RAMGB)

	// RAM is reported in fractional gigabytes, matching the heartbeat
	// record's field.
	record := store.Machine{RAMGB: info.RAMGB, CPUCores: info.CPUCores}
	require.InDelta(t, info.RAMGB, record.RAMGB, 0.0001)
}
