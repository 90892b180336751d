package benchmarks

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
	"github.com/tsarna/jsbridge/pkg/jsbridge/content"
	"github.com/tsarna/jsbridge/pkg/jsbridge/correlator"
	"github.com/tsarna/jsbridge/pkg/jsbridge/dispatcher"
	"github.com/tsarna/jsbridge/pkg/jsbridge/envelope"
	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
	"github.com/tsarna/jsbridge/pkg/jsbridge/otel"
	"github.com/tsarna/jsbridge/pkg/jsbridge/prom"
	"github.com/tsarna/jsbridge/pkg/jsbridge/transport"
)

// NoOpSubscriber for benchmarking - minimal overhead
type NoOpSubscriber struct {
	bus.BaseSubscriber
}

func (n *NoOpSubscriber) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	return nil
}

type point struct {
	X, Y int
}

// newBridge joins a page and a host dispatcher through a loopback and
// returns the page's correlator, so calls can be made from Go.
func newBridge(b *testing.B, provider o11y.MetricsProvider) *correlator.Correlator {
	b.Helper()
	logger := zap.NewNop()
	loopback := transport.NewLoopback(logger)

	page, err := content.NewPage().
		WithSender(loopback).
		WithLogger(logger).
		WithMetrics(provider).
		Build()
	if err != nil {
		b.Fatalf("page Build() returned error: %v", err)
	}
	b.Cleanup(page.Close)

	d, err := dispatcher.New().
		WithExecutor(loopback).
		WithLogger(logger).
		WithMetrics(provider).
		Build()
	if err != nil {
		b.Fatalf("dispatcher Build() returned error: %v", err)
	}
	b.Cleanup(d.Close)

	d.HandleFunc("echo", func(ctx context.Context, data json.RawMessage) (any, error) {
		return data, nil
	})

	loopback.Attach(d.OnIncoming, page)
	b.Cleanup(loopback.Detach)

	return page.Bridge()
}

func benchmarkCall(b *testing.B, provider o11y.MetricsProvider) {
	bridge := newBridge(b, provider)
	ctx := context.Background()
	data := point{X: 1, Y: 2}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := bridge.Call(ctx, "echo", data); err != nil {
			b.Fatalf("Call() returned error: %v", err)
		}
	}
}

func BenchmarkCallNoObservability(b *testing.B) {
	benchmarkCall(b, nil)
}

func BenchmarkCallWithPrometheus(b *testing.B) {
	benchmarkCall(b, prom.NewProvider("bench", zap.NewNop()))
}

func BenchmarkCallWithOpenTelemetry(b *testing.B) {
	benchmarkCall(b, otel.NewProvider("bench", jsbridge.Version))
}

func BenchmarkCallParallel(b *testing.B) {
	bridge := newBridge(b, nil)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := bridge.Call(ctx, "echo", "parallel"); err != nil {
				b.Errorf("Call() returned error: %v", err)
				return
			}
		}
	})
}

func BenchmarkEnvelopeRoundTrip(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		env, err := envelope.New(uint64(i+1), "echo", point{X: i, Y: -i})
		if err != nil {
			b.Fatal(err)
		}
		text, err := envelope.Encode(env)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := envelope.Decode(text); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCallbackScript(b *testing.B) {
	result := json.RawMessage(`{"msg":"</script>","n":[1,2,3]}`)
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := envelope.CallbackScript(jsbridge.GlobalName, uint64(i+1), nil, result); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkObserverPublish(b *testing.B) {
	eventBus, err := bus.NewEventBus().WithLogger(zap.NewNop()).Build()
	if err != nil {
		b.Fatalf("Build() returned error: %v", err)
	}
	eventBus.Start()
	defer eventBus.Stop()

	eventBus.Subscribe(context.Background(), &NoOpSubscriber{}, "ui/+")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		eventBus.PublishSync(context.Background(), "ui/click", "benchmark event")
	}
}
