package source

import (
	"context"
	"fmt"

	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/0xA1M/sentinel-audit/internal/sampler"
)

// NetCounters reads host-wide interface totals through gopsutil.
type NetCounters struct{}

func NewNetCounters() *NetCounters {
	return &NetCounters{}
}

func (nc *NetCounters) Counters(ctx context.Context) (sampler.NetworkCounters, error) {
	stats, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return sampler.NetworkCounters{}, fmt.Errorf("failed to read network counters: %w", err)
	}
	if len(stats) == 0 {
		return sampler.NetworkCounters{}, fmt.Errorf("no network counters reported")
	}

	return sampler.NetworkCounters{
		BytesSent: stats[0].BytesSent,
		BytesRecv: stats[0].BytesRecv,
	}, nil
}
