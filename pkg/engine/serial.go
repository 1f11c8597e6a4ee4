package engine

import (
	"fmt"

	"github.com/picogrid/flock-simulations/pkg/flock"
)

// SerialBackend runs every kernel as a scalar loop on the calling goroutine.
type SerialBackend struct {
	kernels [numSlots]Kernel
}

// NewSerialBackend binds the builtin kernels
func NewSerialBackend() *SerialBackend {
	table, err := DefaultKernels.Bind(BuiltinSources(), BuiltinEntries)
	if err != nil {
		panic(err)
	}
	return &SerialBackend{kernels: table}
}

// Name returns the backend name
func (b *SerialBackend) Name() string { return string(BackendSerial) }

// Averages computes the mean state of f in a single pass
func (b *SerialBackend) Averages(f *flock.Flock) (AverageState, error) {
	n := f.Len()
	if n == 0 {
		return AverageState{}, fmt.Errorf("flock %q: %w", f.Name(), flock.ErrEmptyFlock)
	}
	return meanOf(b.kernels[SlotCalcAverages].Sum(f, 0, n), n), nil
}

// Dispatch runs the slot kernel over every agent in order
func (b *SerialBackend) Dispatch(slot KernelSlot, args *KernelArgs) (Deltas, error) {
	if slot <= SlotCalcAverages || slot >= numSlots {
		return Deltas{}, fmt.Errorf("%w %s", ErrKernelSlot, slot)
	}
	kernel := b.kernels[slot].Agent
	out := newDeltas(args.Self.Len())
	for j := range out.Theta {
		out.Theta[j], out.Epsilon[j] = kernel(args, j)
	}
	return out, nil
}

func meanOf(sums [5]float64, n int) AverageState {
	fn := float64(n)
	return AverageState{
		X:       sums[0] / fn,
		Y:       sums[1] / fn,
		Z:       sums[2] / fn,
		Theta:   sums[3] / fn,
		Epsilon: sums[4] / fn,
	}
}
