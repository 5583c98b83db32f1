package pc

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/thesyncim/rtcbridge/internal/testutil"
	"github.com/thesyncim/rtcbridge/pkg/engine"
	"github.com/thesyncim/rtcbridge/pkg/loop"
)

const testSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

type harness struct {
	pc     *PeerConnection
	eng    *testutil.FakeEngine
	loop   *loop.Loop
	reader *sdkmetric.ManualReader
}

func newHarness(t *testing.T, constraints *engine.Constraints, opts ...Option) *harness {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	eng := &testutil.FakeEngine{}
	l := loop.New(testutil.NewTestLogger(t))
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t)), WithMetrics(m)}, opts...)
	p, err := NewPeerConnection(eng, l, DefaultConfiguration(), constraints, opts...)
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	t.Cleanup(p.Destroy)
	return &harness{pc: p, eng: eng, loop: l, reader: reader}
}

// conn forces the engine connection into existence and returns it.
func (h *harness) conn(t *testing.T) *testutil.FakeConnection {
	t.Helper()
	if h.eng.Last() == nil {
		if err := h.pc.AddStream(testutil.Stream("warmup")); err != nil {
			t.Fatalf("AddStream: %v", err)
		}
	}
	return h.eng.Last()
}

// fromEngine runs fn the way an engine would and drains the loop.
func (h *harness) fromEngine(t *testing.T, fn func()) int {
	t.Helper()
	testutil.FromEngine(t, fn)
	return h.loop.RunPending()
}

func (h *harness) counter(t *testing.T, name string, attrs map[string]string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				if matches(dp.Attributes, attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func matches(set attribute.Set, want map[string]string) bool {
	for k, v := range want {
		got, ok := set.Value(attribute.Key(k))
		if !ok || got.AsString() != v {
			return false
		}
	}
	return true
}

func offerDesc(sdp string) engine.SessionDescription {
	return engine.SessionDescription{Type: engine.SDPTypeOffer, SDP: sdp}
}

func ptr[T any](v T) *T { return &v }
