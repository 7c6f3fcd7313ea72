// Package device detects the compute device a model runtime is bound to and
// derives the precision policy and tuning defaults that follow from it.
package device

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Kind is the class of compute device.
type Kind string

const (
	// CPU is the host processor.
	CPU Kind = "cpu"
	// UnifiedGPU is an accelerator sharing host memory (Apple MPS).
	UnifiedGPU Kind = "unified_gpu"
	// DiscreteGPU is a dedicated accelerator with its own memory (CUDA).
	DiscreteGPU Kind = "discrete_gpu"
)

// Precision is the numeric precision policy.
type Precision string

const (
	// FP32 is full precision.
	FP32 Precision = "fp32"
	// FP16 is half precision. Enabled only on discrete GPUs.
	FP16 Precision = "fp16"
)

// Descriptor is the typed result of device selection.
type Descriptor struct {
	Kind      Kind
	Name      string // runtime device string: cpu, mps, cuda, cuda:1
	Precision Precision
}

// Reentrant reports whether concurrent calls on this device are safe.
// Accelerator runtimes are treated as non-reentrant.
func (d Descriptor) Reentrant() bool { return d.Kind == CPU }

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.Name, d.Kind, d.Precision)
}

// Prober selects a device. Its hooks exist so that tests can simulate hosts.
type Prober struct {
	GOOS     string
	GOARCH   string
	Stat     func(path string) error
	LookPath func(file string) error
}

// NewProber returns a Prober for the running host.
func NewProber() *Prober {
	return &Prober{
		GOOS:   runtime.GOOS,
		GOARCH: runtime.GOARCH,
		Stat: func(path string) error {
			_, err := os.Stat(path)
			return err //nolint:wrapcheck // presence probe
		},
		LookPath: func(file string) error {
			_, err := exec.LookPath(file)
			return err //nolint:wrapcheck // presence probe
		},
	}
}

// Probe resolves the device: explicit override, then unified-memory GPU,
// then discrete GPU, then CPU.
func (p *Prober) Probe(override string) (Descriptor, error) {
	if override != "" {
		return parse(override)
	}
	if p.GOOS == "darwin" && p.GOARCH == "arm64" {
		return describe(UnifiedGPU, "mps"), nil
	}
	if p.hasNvidia() {
		return describe(DiscreteGPU, "cuda"), nil
	}
	return describe(CPU, "cpu"), nil
}

// Probe resolves the device on the running host.
func Probe(override string) (Descriptor, error) {
	return NewProber().Probe(override)
}

func (p *Prober) hasNvidia() bool {
	if p.Stat != nil && p.Stat("/dev/nvidia0") == nil {
		return true
	}
	return p.LookPath != nil && p.LookPath("nvidia-smi") == nil
}

func parse(override string) (Descriptor, error) {
	name := strings.ToLower(strings.TrimSpace(override))
	switch {
	case name == "cpu":
		return describe(CPU, name), nil
	case name == "mps":
		return describe(UnifiedGPU, name), nil
	case name == "cuda" || strings.HasPrefix(name, "cuda:"):
		return describe(DiscreteGPU, name), nil
	}
	return Descriptor{}, fmt.Errorf("unsupported device %q (want cpu, mps, cuda or cuda:N)", override)
}

func describe(kind Kind, name string) Descriptor {
	precision := FP32
	if kind == DiscreteGPU {
		precision = FP16
	}
	return Descriptor{Kind: kind, Name: name, Precision: precision}
}
