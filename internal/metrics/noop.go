package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncUpdate is a no-op.
func (n *NoopRecorder) IncUpdate(kind string) {}

// IncUpdateDropped is a no-op.
func (n *NoopRecorder) IncUpdateDropped() {}

// IncMembershipCheck is a no-op.
func (n *NoopRecorder) IncMembershipCheck(result string) {}

// IncFlow is a no-op.
func (n *NoopRecorder) IncFlow(outcome string) {}

// ObserveFlowDuration is a no-op.
func (n *NoopRecorder) ObserveFlowDuration(duration time.Duration) {}

// IncBroadcastDelivery is a no-op.
func (n *NoopRecorder) IncBroadcastDelivery(status string) {}
