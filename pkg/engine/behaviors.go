package engine

import "fmt"

// The behavior generators read the average cache as last refreshed, so
// callers outside AdvanceOneTick must call RefreshAverages first. Results
// are raw: the non-finite policy is only applied when a tick accumulates
// them.

// Hunt steers every agent of self toward its selected prey agent.
func (e *Engine) Hunt(self, prey int) (Deltas, error) {
	s, err := e.flockAt(self)
	if err != nil {
		return Deltas{}, err
	}
	p, err := e.flockAt(prey)
	if err != nil {
		return Deltas{}, err
	}
	return e.dispatch(SlotHunt, &KernelArgs{Self: s, Other: p, Policy: e.policy})
}

// EvadeNearest steers every agent of self away from its selected predator agent.
func (e *Engine) EvadeNearest(self, predator int) (Deltas, error) {
	s, err := e.flockAt(self)
	if err != nil {
		return Deltas{}, err
	}
	p, err := e.flockAt(predator)
	if err != nil {
		return Deltas{}, err
	}
	return e.dispatch(SlotEvadeNearest, &KernelArgs{Self: s, Other: p, Policy: e.policy})
}

// EvadePack steers every agent of self away from the predator flock's mean position.
func (e *Engine) EvadePack(self, predator int) (Deltas, error) {
	s, err := e.flockAt(self)
	if err != nil {
		return Deltas{}, err
	}
	if _, err := e.flockAt(predator); err != nil {
		return Deltas{}, err
	}
	return e.dispatch(SlotEvadePack, &KernelArgs{Self: s, Target: e.cache.At(predator).Position()})
}

// Align turns every agent of self toward the flock's mean orientation.
func (e *Engine) Align(self int) (Deltas, error) {
	s, err := e.flockAt(self)
	if err != nil {
		return Deltas{}, err
	}
	return e.dispatch(SlotAlign, &KernelArgs{Self: s, Mean: e.cache.At(self)})
}

// Separate steers every agent of self away from its own flock's mean position.
func (e *Engine) Separate(self int) (Deltas, error) {
	s, err := e.flockAt(self)
	if err != nil {
		return Deltas{}, err
	}
	return e.dispatch(SlotSeparate, &KernelArgs{Self: s, Target: e.cache.At(self).Position()})
}

// Cohere steers every agent of self toward its own flock's mean position.
// It is the exact negation of Separate.
func (e *Engine) Cohere(self int) (Deltas, error) {
	s, err := e.flockAt(self)
	if err != nil {
		return Deltas{}, err
	}
	return e.dispatch(SlotCohere, &KernelArgs{Self: s, Target: e.cache.At(self).Position()})
}

func (e *Engine) dispatch(slot KernelSlot, args *KernelArgs) (Deltas, error) {
	d, err := e.backend.Dispatch(slot, args)
	result := "ok"
	if err != nil {
		result = "error"
	} else if d.Len() != args.Self.Len() {
		result = "error"
		err = fmt.Errorf("%w: %s returned %d deltas for %d agents", ErrDispatch, slot, d.Len(), args.Self.Len())
	}
	kernelDispatches.WithLabelValues(e.backend.Name(), slot.String(), result).Inc()
	if err != nil {
		e.log.Errorf("%s dispatch failed: %v", slot, err)
		return Deltas{}, err
	}
	return d, nil
}
