package sampler

import (
	"time"

	"github.com/0xA1M/sentinel-audit/internal/event"
)

// NetworkSampler reports cumulative counters as-is on every call. Rates are
// left to consumers.
type NetworkSampler struct {
	now func() time.Time
}

func NewNetworkSampler() *NetworkSampler {
	return &NetworkSampler{now: time.Now}
}

func (ns *NetworkSampler) Sample(c NetworkCounters) event.Event {
	return event.NewNetworkSample(ns.now(), c.BytesSent, c.BytesRecv)
}
