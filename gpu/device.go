package gpu

// Prober answers whether a device can hold a candidate reservation
// total. The accelerator runtime implements it against live device
// state; the pool only consumes it.
type Prober interface {
	// DeviceCount returns the number of devices the pool tracks.
	DeviceCount() int
	// ValidAllocation reports whether the device can hold total bytes
	// of outstanding reservations.
	ValidAllocation(total uint64, device int) bool
}

// DefaultHeadroom is the fraction of device memory reservations may
// occupy. The rest is held back for bootstrap keys and runtime
// overhead.
const DefaultHeadroom = 0.80

// StaticCapacity is a Prober with a fixed byte budget per device. It
// serves deployments with dedicated devices, where budgets are set once
// at startup, and deterministic tests.
type StaticCapacity []uint64

func (c StaticCapacity) DeviceCount() int { return len(c) }

func (c StaticCapacity) ValidAllocation(total uint64, device int) bool {
	return total <= c[device]
}

// Budget derives per-device reservation budgets from total device
// memory sizes: each budget is the headroom fraction of the device's
// memory.
func Budget(totalMemory []uint64, headroom float64) StaticCapacity {
	caps := make(StaticCapacity, len(totalMemory))
	for i, m := range totalMemory {
		caps[i] = uint64(float64(m) * headroom)
	}
	return caps
}
