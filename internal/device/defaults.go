package device

// Defaults are the tuning values that depend on the device.
type Defaults struct {
	BatchSize       int
	MaxLength       int
	CacheSize       int
	CandidateWindow int
	FinalWindow     int
}

// DefaultsFor returns the tuning defaults for a device kind.
func DefaultsFor(kind Kind) Defaults {
	switch kind {
	case DiscreteGPU:
		return Defaults{BatchSize: 64, MaxLength: 8192, CacheSize: 2000, CandidateWindow: 10, FinalWindow: 5}
	case UnifiedGPU:
		return Defaults{BatchSize: 32, MaxLength: 8192, CacheSize: 2000, CandidateWindow: 5, FinalWindow: 3}
	default:
		return Defaults{BatchSize: 16, MaxLength: 4096, CacheSize: 1000, CandidateWindow: 5, FinalWindow: 3}
	}
}
