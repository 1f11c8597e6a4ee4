package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/picogrid/flock-simulations/pkg/flock"
)

// KernelSlot identifies one of the per-tick computations a backend runs.
type KernelSlot int

const (
	SlotCalcAverages KernelSlot = iota
	SlotHunt
	SlotEvadeNearest
	SlotEvadePack
	SlotAlign
	SlotSeparate
	SlotCohere

	numSlots
)

var slotNames = [numSlots]string{
	"calcAverages", "hunt", "evadeNearest", "evadePack", "align", "separate", "cohere",
}

func (s KernelSlot) String() string {
	if s < 0 || s >= numSlots {
		return fmt.Sprintf("slot(%d)", int(s))
	}
	return slotNames[s]
}

// Slots returns every kernel slot in positional order
func Slots() []KernelSlot {
	out := make([]KernelSlot, numSlots)
	for i := range out {
		out[i] = KernelSlot(i)
	}
	return out
}

var (
	// ErrUnknownKernel is returned when a source/entry pair is not registered.
	ErrUnknownKernel = errors.New("unknown kernel")
	// ErrKernelSlot is returned when a kernel is bound to the wrong slot.
	ErrKernelSlot = errors.New("kernel does not implement slot")
)

// KernelArgs carries the read-only inputs of one behavior dispatch.
type KernelArgs struct {
	Self   *flock.Flock
	Other  *flock.Flock // prey or predator for hunt and evade-nearest
	Target r3.Vec       // cached mean position for evade-pack, separate, cohere
	Mean   AverageState // acting flock's cached mean for align
	Policy NeighborPolicy
}

// AgentKernel computes the raw theta/epsilon delta of agent j.
// It must only read args, so agents can be processed in any order.
type AgentKernel func(args *KernelArgs, j int) (float64, float64)

// SumKernel accumulates x, y, z, theta, epsilon over agents [lo, hi).
type SumKernel func(f *flock.Flock, lo, hi int) [5]float64

// Kernel is a registered implementation of one slot. Exactly one of Agent
// and Sum is set, Sum only for SlotCalcAverages.
type Kernel struct {
	Source string
	Entry  string
	Slot   KernelSlot
	Agent  AgentKernel
	Sum    SumKernel
}

// KernelRegistry maps source/entry pairs to kernels
type KernelRegistry struct {
	mu      sync.RWMutex
	kernels map[string]Kernel
}

// NewKernelRegistry creates an empty registry
func NewKernelRegistry() *KernelRegistry {
	return &KernelRegistry{
		kernels: make(map[string]Kernel),
	}
}

func kernelKey(source, entry string) string {
	return source + ":" + entry
}

// Register adds a kernel to the registry
func (r *KernelRegistry) Register(k Kernel) error {
	if k.Slot < 0 || k.Slot >= numSlots {
		return fmt.Errorf("kernel %s:%s: %w %d", k.Source, k.Entry, ErrKernelSlot, int(k.Slot))
	}
	if (k.Slot == SlotCalcAverages) != (k.Sum != nil) || (k.Sum == nil) == (k.Agent == nil) {
		return fmt.Errorf("kernel %s:%s has the wrong function shape for %s", k.Source, k.Entry, k.Slot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := kernelKey(k.Source, k.Entry)
	if _, exists := r.kernels[key]; exists {
		return fmt.Errorf("kernel %s already registered", key)
	}
	r.kernels[key] = k
	return nil
}

// Get returns the kernel registered under source and entry
func (r *KernelRegistry) Get(source, entry string) (Kernel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, exists := r.kernels[kernelKey(source, entry)]
	if !exists {
		return Kernel{}, fmt.Errorf("%w %s", ErrUnknownKernel, kernelKey(source, entry))
	}
	return k, nil
}

// List returns all registered kernels ordered by slot, then source and entry
func (r *KernelRegistry) List() []Kernel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Kernel, 0, len(r.kernels))
	for _, k := range r.kernels {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return kernelKey(out[i].Source, out[i].Entry) < kernelKey(out[j].Source, out[j].Entry)
	})
	return out
}

// Bind resolves sources and entries, paired positionally with the kernel
// slots, into a slot table.
func (r *KernelRegistry) Bind(sources, entries []string) ([numSlots]Kernel, error) {
	var table [numSlots]Kernel
	if len(sources) != int(numSlots) || len(entries) != int(numSlots) {
		return table, fmt.Errorf("need %d kernel sources and entries, got %d and %d",
			numSlots, len(sources), len(entries))
	}
	for i := range table {
		k, err := r.Get(sources[i], entries[i])
		if err != nil {
			return table, fmt.Errorf("slot %d (%s): %w", i, KernelSlot(i), err)
		}
		if k.Slot != KernelSlot(i) {
			return table, fmt.Errorf("slot %d (%s): %w, %s:%s implements %s",
				i, KernelSlot(i), ErrKernelSlot, k.Source, k.Entry, k.Slot)
		}
		table[i] = k
	}
	return table, nil
}

// BuiltinSource is the source identifier of the kernels shipped with the engine.
const BuiltinSource = "builtin"

// BuiltinEntries are the builtin entry points in slot order
var BuiltinEntries = []string{
	"calc_averages", "hunt", "evade_nearest", "evade_pack", "align", "separate", "cohere",
}

// BuiltinSources returns BuiltinSource repeated for every slot
func BuiltinSources() []string {
	out := make([]string, numSlots)
	for i := range out {
		out[i] = BuiltinSource
	}
	return out
}

// DefaultKernels is the registry holding the builtin kernels
var DefaultKernels = newBuiltinRegistry()

func newBuiltinRegistry() *KernelRegistry {
	r := NewKernelRegistry()
	builtins := []Kernel{
		{Slot: SlotCalcAverages, Sum: sumAgents},
		{Slot: SlotHunt, Agent: huntKernel},
		{Slot: SlotEvadeNearest, Agent: evadeNearestKernel},
		{Slot: SlotEvadePack, Agent: evadePackKernel},
		{Slot: SlotAlign, Agent: alignKernel},
		{Slot: SlotSeparate, Agent: separateKernel},
		{Slot: SlotCohere, Agent: cohereKernel},
	}
	for i, k := range builtins {
		k.Source = BuiltinSource
		k.Entry = BuiltinEntries[i]
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
	return r
}

func sumAgents(f *flock.Flock, lo, hi int) [5]float64 {
	return [5]float64{
		floats.Sum(f.PositionsX()[lo:hi]),
		floats.Sum(f.PositionsY()[lo:hi]),
		floats.Sum(f.PositionsZ()[lo:hi]),
		floats.Sum(f.Thetas()[lo:hi]),
		floats.Sum(f.Epsilons()[lo:hi]),
	}
}

// steerAgent turns agent j of args.Self toward point.
func steerAgent(args *KernelArgs, j int, point r3.Vec) (float64, float64) {
	self := args.Self
	a := r3.Sub(point, self.Position(j))
	return steer(a, self.SpeedAt(j), self.ThetaAt(j), self.EpsilonAt(j))
}

func huntKernel(args *KernelArgs, j int) (float64, float64) {
	prey := args.Policy.Find(args.Self.Position(j), args.Other)
	return steerAgent(args, j, args.Other.Position(prey))
}

func evadeNearestKernel(args *KernelArgs, j int) (float64, float64) {
	predator := args.Policy.Find(args.Self.Position(j), args.Other)
	t, e := steerAgent(args, j, args.Other.Position(predator))
	return -t, -e
}

func evadePackKernel(args *KernelArgs, j int) (float64, float64) {
	t, e := steerAgent(args, j, args.Target)
	return -t, -e
}

func alignKernel(args *KernelArgs, j int) (float64, float64) {
	t := args.Mean.Theta - args.Self.ThetaAt(j)
	e := args.Mean.Epsilon - args.Self.EpsilonAt(j)
	return WrapTheta(t), WrapEpsilon(e)
}

func separateKernel(args *KernelArgs, j int) (float64, float64) {
	t, e := steerAgent(args, j, args.Target)
	return -t, -e
}

func cohereKernel(args *KernelArgs, j int) (float64, float64) {
	return steerAgent(args, j, args.Target)
}
