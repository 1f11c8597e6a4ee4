package engine

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/picogrid/flock-simulations/pkg/flock"
)

// ErrDispatch wraps failures of an offloaded kernel dispatch.
var ErrDispatch = errors.New("kernel dispatch failed")

// OffloadBackend splits each kernel call into work groups sized for the
// target device and runs them concurrently. Every call blocks until all
// groups have finished and their results are in place.
type OffloadBackend struct {
	device  Device
	kernels [numSlots]Kernel
}

// NewOffloadBackend validates the device class and binds kernel sources and
// entry points, paired positionally with the kernel slots.
func NewOffloadBackend(device string, sources, entries []string, registry *KernelRegistry) (*OffloadBackend, error) {
	class, err := ParseDeviceClass(device)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = DefaultKernels
	}
	table, err := registry.Bind(sources, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to load kernels: %w", err)
	}
	return &OffloadBackend{
		device:  DeviceFor(class),
		kernels: table,
	}, nil
}

// Name returns the backend name including the device class
func (b *OffloadBackend) Name() string {
	return string(BackendOffload) + "/" + string(b.device.Class)
}

// Device returns the dispatch geometry in use
func (b *OffloadBackend) Device() Device { return b.device }

type workGroup struct {
	index  int
	lo, hi int
}

func (b *OffloadBackend) groups(n int) []workGroup {
	size := b.device.WorkGroupSize
	out := make([]workGroup, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, workGroup{index: len(out), lo: lo, hi: min(lo+size, n)})
	}
	return out
}

// run executes fn for every work group and waits for all of them.
// A panicking group is reported as a dispatch error.
func (b *OffloadBackend) run(name string, n int, fn func(g workGroup)) error {
	var eg errgroup.Group
	eg.SetLimit(b.device.MaxWorkers)
	for _, g := range b.groups(n) {
		g := g
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %s group %d [%d,%d): %v", ErrDispatch, name, g.index, g.lo, g.hi, r)
				}
			}()
			fn(g)
			return nil
		})
	}
	return eg.Wait()
}

// Averages reduces per-group partial sums in group order
func (b *OffloadBackend) Averages(f *flock.Flock) (AverageState, error) {
	n := f.Len()
	if n == 0 {
		return AverageState{}, fmt.Errorf("flock %q: %w", f.Name(), flock.ErrEmptyFlock)
	}

	sum := b.kernels[SlotCalcAverages].Sum
	partials := make([][5]float64, len(b.groups(n)))
	err := b.run(SlotCalcAverages.String(), n, func(g workGroup) {
		partials[g.index] = sum(f, g.lo, g.hi)
	})
	if err != nil {
		return AverageState{}, err
	}

	total := make([]float64, 5)
	for i := range partials {
		floats.Add(total, partials[i][:])
	}
	return meanOf([5]float64(total), n), nil
}

// Dispatch runs the slot kernel over all agents of args.Self
func (b *OffloadBackend) Dispatch(slot KernelSlot, args *KernelArgs) (Deltas, error) {
	if slot <= SlotCalcAverages || slot >= numSlots {
		return Deltas{}, fmt.Errorf("%w %s", ErrKernelSlot, slot)
	}
	kernel := b.kernels[slot].Agent
	out := newDeltas(args.Self.Len())
	err := b.run(slot.String(), out.Len(), func(g workGroup) {
		for j := g.lo; j < g.hi; j++ {
			out.Theta[j], out.Epsilon[j] = kernel(args, j)
		}
	})
	if err != nil {
		return Deltas{}, err
	}
	return out, nil
}
