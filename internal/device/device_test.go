package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errMissing = errors.New("missing")

func host(goos, goarch string, devNode, smi bool) *Prober {
	return &Prober{
		GOOS:   goos,
		GOARCH: goarch,
		Stat: func(string) error {
			if devNode {
				return nil
			}
			return errMissing
		},
		LookPath: func(string) error {
			if smi {
				return nil
			}
			return errMissing
		},
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name     string
		prober   *Prober
		override string
		want     Descriptor
	}{
		{"apple silicon", host("darwin", "arm64", false, false), "", Descriptor{UnifiedGPU, "mps", FP32}},
		{"intel mac", host("darwin", "amd64", false, false), "", Descriptor{CPU, "cpu", FP32}},
		{"nvidia device node", host("linux", "amd64", true, false), "", Descriptor{DiscreteGPU, "cuda", FP16}},
		{"nvidia-smi on path", host("linux", "amd64", false, true), "", Descriptor{DiscreteGPU, "cuda", FP16}},
		{"plain linux", host("linux", "amd64", false, false), "", Descriptor{CPU, "cpu", FP32}},
		{"override wins", host("linux", "amd64", true, true), "cpu", Descriptor{CPU, "cpu", FP32}},
		{"override indexed cuda", host("linux", "amd64", false, false), "CUDA:1", Descriptor{DiscreteGPU, "cuda:1", FP16}},
		{"override mps", host("linux", "amd64", false, false), "mps", Descriptor{UnifiedGPU, "mps", FP32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.prober.Probe(tt.override)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Probe() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProbe_UnsupportedOverride(t *testing.T) {
	if _, err := host("linux", "amd64", false, false).Probe("tpu"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPrecisionOnlyOnDiscreteGPU(t *testing.T) {
	for _, name := range []string{"cpu", "mps", "cuda"} {
		d, err := parse(name)
		if err != nil {
			t.Fatalf("parse(%q): %v", name, err)
		}
		if (d.Precision == FP16) != (d.Kind == DiscreteGPU) {
			t.Errorf("%s: precision %s on %s", name, d.Precision, d.Kind)
		}
	}
}

func TestDefaultsFor(t *testing.T) {
	tests := []struct {
		kind Kind
		want Defaults
	}{
		{CPU, Defaults{16, 4096, 1000, 5, 3}},
		{UnifiedGPU, Defaults{32, 8192, 2000, 5, 3}},
		{DiscreteGPU, Defaults{64, 8192, 2000, 10, 5}},
	}
	for _, tt := range tests {
		if got := DefaultsFor(tt.kind); got != tt.want {
			t.Errorf("DefaultsFor(%s) = %+v, want %+v", tt.kind, got, tt.want)
		}
	}
}

func TestGuards_SerializesAccelerator(t *testing.T) {
	g := NewGuards()
	gpu := Descriptor{Kind: DiscreteGPU, Name: "cuda"}

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), gpu, func() error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("peak concurrency on accelerator = %d, want 1", peak.Load())
	}
}

func TestGuards_CPUUnguarded(t *testing.T) {
	g := NewGuards()
	cpu := Descriptor{Kind: CPU, Name: "cpu"}

	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	for range 2 {
		go func() {
			_ = g.Do(context.Background(), cpu, func() error {
				entered <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	for range 2 {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatal("cpu calls should run concurrently")
		}
	}
	close(release)
}

func TestGuards_WaitHonorsContext(t *testing.T) {
	g := NewGuards()
	gpu := Descriptor{Kind: UnifiedGPU, Name: "mps"}

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), gpu, func() error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Do(ctx, gpu, func() error {
		t.Error("fn must not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestGuards_CUDAAliasesShareGuard(t *testing.T) {
	g := NewGuards()
	bare := Descriptor{Kind: DiscreteGPU, Name: "cuda"}
	first := Descriptor{Kind: DiscreteGPU, Name: "cuda:0"}
	second := Descriptor{Kind: DiscreteGPU, Name: "cuda:1"}

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), bare, func() error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Do(ctx, first, func() error {
		t.Error("cuda:0 must wait for the guard held through cuda")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}

	ran := false
	if err := g.Do(context.Background(), second, func() error { ran = true; return nil }); err != nil || !ran {
		t.Errorf("cuda:1 is a different device and must not wait: ran=%v err=%v", ran, err)
	}
}

func TestGuardKey(t *testing.T) {
	for in, want := range map[string]string{"cuda": "cuda:0", " CUDA ": "cuda:0", "cuda:0": "cuda:0", "cuda:2": "cuda:2", "mps": "mps"} {
		if got := guardKey(in); got != want {
			t.Errorf("guardKey(%q) = %q, want %q", in, got, want)
		}
	}
}
