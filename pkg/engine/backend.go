package engine

import (
	"errors"
	"fmt"
	"runtime"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/picogrid/flock-simulations/pkg/flock"
)

// AverageState is the cached mean state of one flock.
type AverageState struct {
	X, Y, Z        float64
	Theta, Epsilon float64
}

// Position returns the mean position as a vector
func (a AverageState) Position() r3.Vec {
	return r3.Vec{X: a.X, Y: a.Y, Z: a.Z}
}

// Deltas holds one orientation change per agent of the acting flock.
type Deltas struct {
	Theta   []float64
	Epsilon []float64
}

func newDeltas(n int) Deltas {
	return Deltas{
		Theta:   make([]float64, n),
		Epsilon: make([]float64, n),
	}
}

// Len returns the number of agents covered
func (d Deltas) Len() int { return len(d.Theta) }

// Backend is an execution strategy for the per-agent flocking arithmetic.
// Every implementation must produce the results of the serial backend.
type Backend interface {
	// Name identifies the backend in logs and metrics
	Name() string
	// Averages computes the mean state of f
	Averages(f *flock.Flock) (AverageState, error)
	// Dispatch runs the kernel bound to slot for every agent of args.Self
	Dispatch(slot KernelSlot, args *KernelArgs) (Deltas, error)
}

// BackendKind selects the execution strategy at construction.
type BackendKind string

const (
	BackendSerial  BackendKind = "serial"
	BackendOffload BackendKind = "offload"
)

// ParseBackendKind converts a config string into a backend kind
func ParseBackendKind(s string) (BackendKind, error) {
	switch BackendKind(s) {
	case "":
		return BackendSerial, nil
	case BackendSerial, BackendOffload:
		return BackendKind(s), nil
	}
	return "", fmt.Errorf("unknown backend %q (want %s or %s)", s, BackendSerial, BackendOffload)
}

// ErrInvalidDevice is returned for a device class other than CPU, GPU or ACC.
var ErrInvalidDevice = errors.New("invalid device type specified")

// DeviceClass is the class of compute device a backend targets.
type DeviceClass string

const (
	DeviceCPU DeviceClass = "CPU"
	DeviceGPU DeviceClass = "GPU"
	DeviceACC DeviceClass = "ACC"
)

// ParseDeviceClass validates a device-mode string
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch DeviceClass(s) {
	case DeviceCPU, DeviceGPU, DeviceACC:
		return DeviceClass(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDevice, s)
}

// Device describes how an offloaded dispatch is split into work groups.
type Device struct {
	Class         DeviceClass
	WorkGroupSize int // agents per work group
	MaxWorkers    int // work groups in flight
}

// DeviceFor returns the dispatch geometry used for a device class
func DeviceFor(class DeviceClass) Device {
	procs := runtime.GOMAXPROCS(0)
	switch class {
	case DeviceGPU:
		return Device{Class: class, WorkGroupSize: 256, MaxWorkers: 4 * procs}
	case DeviceACC:
		return Device{Class: class, WorkGroupSize: 128, MaxWorkers: 2 * procs}
	default:
		return Device{Class: DeviceCPU, WorkGroupSize: 64, MaxWorkers: procs}
	}
}
