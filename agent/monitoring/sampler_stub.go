package monitoring

import "context"

// StubSampler stands in where no platform capture backend is wired. It
// reports an idle desktop so the presence pipeline still works end to
// end on unsupported platforms.
type StubSampler struct{}

func (StubSampler) Sample(ctx context.Context) (Sample, error) {
	return Sample{WindowTitle: "N/A", ProcessName: "N/A", IsActive: false}, nil
}
