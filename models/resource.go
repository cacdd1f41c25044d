package models

import (
	"fmt"
	"strings"
)

type ResourceKind string

const (
	ResourceCPU     ResourceKind = "cpu"
	ResourceRAM     ResourceKind = "ram"
	ResourceDisk    ResourceKind = "disk"
	ResourceGPUUtil ResourceKind = "gpu_util"
	ResourceGPUMem  ResourceKind = "gpu_mem"
	ResourceGPUTemp ResourceKind = "gpu_temp"
)

const (
	UnitPercentage = "percentage"
	UnitCelsius    = "celsius"
)

// AllResourceKinds is the evaluation order used by the monitor loop.
var AllResourceKinds = []ResourceKind{
	ResourceCPU,
	ResourceRAM,
	ResourceDisk,
	ResourceGPUUtil,
	ResourceGPUMem,
	ResourceGPUTemp,
}

// MaxReading is the largest reading the sampler can report for a
// percentage kind. A threshold at or above it can never be breached.
const MaxReading = 100.0

func ParseResourceKind(s string) (ResourceKind, error) {
	kind := ResourceKind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range AllResourceKinds {
		if k == kind {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// Inverse reports whether a low reading is the alarming one. Disk readings
// are free space percentages, every other kind is a usage value.
func (k ResourceKind) Inverse() bool {
	return k == ResourceDisk
}

func (k ResourceKind) Unit() string {
	if k == ResourceGPUTemp {
		return UnitCelsius
	}
	return UnitPercentage
}

// DisplayName is the value substituted for {resource_name} in templates.
func (k ResourceKind) DisplayName() string {
	switch k {
	case ResourceCPU:
		return "CPU"
	case ResourceRAM:
		return "RAM"
	case ResourceDisk:
		return "Disk"
	case ResourceGPUUtil:
		return "GPU utilization"
	case ResourceGPUMem:
		return "GPU memory utilization"
	case ResourceGPUTemp:
		return "GPU temperature"
	default:
		return string(k)
	}
}

// HostWide kinds have exactly one device: the host itself.
func (k ResourceKind) HostWide() bool {
	return k == ResourceCPU || k == ResourceRAM
}

// Threshold is an optional limit. An absent threshold disables the kind.
type Threshold struct {
	Value   float64
	Present bool
}

func NewThreshold(value float64) Threshold {
	return Threshold{Value: value, Present: true}
}

var NoThreshold = Threshold{}

// Breached applies the exceed rule (value > threshold) or, for inverse
// kinds, the free-space rule (value < threshold).
func (t Threshold) Breached(kind ResourceKind, value float64) bool {
	if !t.Present {
		return false
	}
	if kind.Inverse() {
		return value < t.Value
	}
	return value > t.Value
}

func (t Threshold) String() string {
	if !t.Present {
		return "off"
	}
	return FormatNumber(t.Value)
}

// Reading is one sampled value for a (kind, device) pair.
type Reading struct {
	Kind   ResourceKind
	Device string
	Value  float64
	Unit   string
	Detail string
}

func (r Reading) Key() AlertKey {
	return AlertKey{Kind: r.Kind, Device: r.Device}
}

// AlertKey identifies a cooldown entry.
type AlertKey struct {
	Kind   ResourceKind
	Device string
}

func (k AlertKey) String() string {
	return string(k.Kind) + "#" + k.Device
}
