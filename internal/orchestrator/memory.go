package orchestrator

import "github.com/shirou/gopsutil/v3/mem"

// MemorySampler reports how full host memory is, as a 0..1 fraction.
type MemorySampler interface {
	UsedFraction() float64
}

type hostMemory struct{}

// NewHostMemory samples real host memory via gopsutil.
func NewHostMemory() MemorySampler { return hostMemory{} }

func (hostMemory) UsedFraction() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.UsedPercent / 100
}
