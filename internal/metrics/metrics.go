package metrics

import "time"

// Recorder defines the metrics hooks for the node adapter. The default implementation is a no-op
// so the adapter can run without a metrics backend.
type Recorder interface {
	RPCCall(method string, success bool, elapsed time.Duration)
	CapabilityDowngraded(capability string)
	WorkDispatched(height int64)
	WorkFetcherStopped(reason string)
	BlockSubmitted(success bool)
	BalanceObserved(balance, immatured int64)
}

// NoopRecorder implements Recorder without emitting metrics.
type NoopRecorder struct{}

func (NoopRecorder) RPCCall(string, bool, time.Duration) {}
func (NoopRecorder) CapabilityDowngraded(string)         {}
func (NoopRecorder) WorkDispatched(int64)                {}
func (NoopRecorder) WorkFetcherStopped(string)           {}
func (NoopRecorder) BlockSubmitted(bool)                 {}
func (NoopRecorder) BalanceObserved(int64, int64)        {}

// Default is the process-wide metrics sink; cmd/nodeadapterd replaces it with a PromRecorder.
var Default Recorder = NoopRecorder{}
