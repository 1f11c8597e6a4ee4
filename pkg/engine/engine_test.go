package engine

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/picogrid/flock-simulations/pkg/flock"
	"github.com/picogrid/flock-simulations/pkg/logger"
)

var r3Zero = r3.Vec{}

func quietLogger() logger.Logger {
	return logger.NewWithConfig(logger.Config{Level: logger.FatalLevel, Writer: io.Discard, NoColor: true})
}

func mustFlock(t *testing.T, name string, agents ...flock.Agent) *flock.Flock {
	t.Helper()
	f, err := flock.New(name, agents)
	require.NoError(t, err)
	return f
}

func mustEngine(t *testing.T, opts Options, flocks ...*flock.Flock) *Engine {
	t.Helper()
	c, err := flock.NewCollection(flocks...)
	require.NoError(t, err)
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	e, err := New(c, opts)
	require.NoError(t, err)
	return e
}

// chainAgents builds a deterministic, non-degenerate flock.
func chainAgents(n int, offset float64) []flock.Agent {
	agents := make([]flock.Agent, n)
	for i := range agents {
		fi := float64(i)
		agents[i] = flock.Agent{
			X:       offset + fi*1.5,
			Y:       math.Sin(fi) * 4,
			Z:       math.Cos(fi*0.7)*3 + offset/2,
			Speed:   1 + 0.1*fi,
			Theta:   0.2 + 0.05*fi,
			Epsilon: 0.3 + 0.11*fi,
		}
	}
	return agents
}

func threeFlocks(t *testing.T) []*flock.Flock {
	return []*flock.Flock{
		mustFlock(t, "prey", chainAgents(7, 0)...),
		mustFlock(t, "mid", chainAgents(5, 20)...),
		mustFlock(t, "apex", chainAgents(3, -15)...),
	}
}

func TestRefreshIdenticalAgents(t *testing.T) {
	a := flock.Agent{X: 1.5, Y: -2.25, Z: 4, Speed: 1, Theta: 0.5, Epsilon: 1.25}
	e := mustEngine(t, Options{}, mustFlock(t, "same", a, a, a, a))

	e.Averages().Reset()
	require.NoError(t, e.RefreshAverages())

	assert.Equal(t, AverageState{X: 1.5, Y: -2.25, Z: 4, Theta: 0.5, Epsilon: 1.25}, e.Averages().At(0))
}

func TestRefreshLinearPositions(t *testing.T) {
	for _, n := range []int{1, 2, 5, 33} {
		agents := make([]flock.Agent, n)
		for i := range agents {
			agents[i] = flock.Agent{X: float64(i)}
		}
		e := mustEngine(t, Options{}, mustFlock(t, "line", agents...))
		require.NoError(t, e.RefreshAverages())

		avg := e.Averages().At(0)
		assert.InDelta(t, float64(n-1)/2, avg.X, 1e-5)
		assert.InDelta(t, 0, avg.Y, 1e-5)
		assert.InDelta(t, 0, avg.Z, 1e-5)
	}
}

func TestAveragesArePerFlock(t *testing.T) {
	e := mustEngine(t, Options{},
		mustFlock(t, "a", flock.Agent{X: 1}, flock.Agent{X: 3}),
		mustFlock(t, "b", flock.Agent{X: 100}),
	)
	require.NoError(t, e.RefreshAverages())
	assert.Equal(t, 2, e.Averages().Len())
	assert.Equal(t, 2.0, e.Averages().At(0).X)
	assert.Equal(t, 100.0, e.Averages().At(1).X)
}

func TestCohereNegatesSeparate(t *testing.T) {
	e := mustEngine(t, Options{}, threeFlocks(t)...)
	require.NoError(t, e.RefreshAverages())

	for i := 0; i < e.Flocks().Len(); i++ {
		coh, err := e.Cohere(i)
		require.NoError(t, err)
		sep, err := e.Separate(i)
		require.NoError(t, err)

		for j := range coh.Theta {
			assert.Equal(t, coh.Theta[j], -sep.Theta[j])
			assert.Equal(t, coh.Epsilon[j], -sep.Epsilon[j])
		}
	}
}

func TestAlignAtMeanOrientation(t *testing.T) {
	e := mustEngine(t, Options{}, mustFlock(t, "aligned",
		flock.Agent{X: 0, Speed: 1, Theta: 0.5, Epsilon: 1.25},
		flock.Agent{X: 1, Speed: 2, Theta: 0.5, Epsilon: 1.25},
		flock.Agent{X: 2, Speed: 3, Theta: 0.5, Epsilon: 1.25},
		flock.Agent{X: 3, Speed: 4, Theta: 0.5, Epsilon: 1.25},
	))
	require.NoError(t, e.RefreshAverages())

	d, err := e.Align(0)
	require.NoError(t, err)
	for j := range d.Theta {
		assert.Zero(t, d.Theta[j])
		assert.Zero(t, d.Epsilon[j])
	}
}

func TestWrapKeepsSign(t *testing.T) {
	got := WrapTheta(0.5 + -4.5)
	assert.Less(t, got, 0.0)
	assert.Equal(t, math.Mod(-4.0, math.Pi), got)
	assert.InDelta(t, -4.0+math.Pi, got, 1e-12)

	assert.InDelta(t, 1.0, WrapEpsilon(1.0+2*math.Pi), 1e-12)
	assert.InDelta(t, -1.0, WrapEpsilon(-1.0-2*math.Pi), 1e-12)
}

func TestCommitWrapsStoredAngles(t *testing.T) {
	prey := mustFlock(t, "prey", flock.Agent{X: 12, Y: 1, Speed: 1})
	hunter := mustFlock(t, "hunter", flock.Agent{Speed: 1, Theta: 3.1})
	e := mustEngine(t, Options{}, prey, hunter)

	wrapped := false
	for tick := 0; tick < 500; tick++ {
		require.NoError(t, e.RefreshAverages())
		d, err := e.Hunt(1, 0)
		require.NoError(t, err)
		prevTheta, prevEpsilon := hunter.ThetaAt(0), hunter.EpsilonAt(0)

		// a lone hunter only hunts, its other behaviors are zeroed
		rawTheta := prevTheta + WrapTheta(d.Theta[0]*DefaultWeights().Hunt)
		rawEpsilon := prevEpsilon + WrapEpsilon(d.Epsilon[0]*DefaultWeights().Hunt)

		require.NoError(t, e.AdvanceOneTick())
		assert.InDelta(t, WrapTheta(rawTheta), hunter.ThetaAt(0), 1e-12, "tick %d", tick)
		assert.InDelta(t, WrapEpsilon(rawEpsilon), hunter.EpsilonAt(0), 1e-12, "tick %d", tick)
		require.Less(t, math.Abs(hunter.ThetaAt(0)), math.Pi, "tick %d", tick)
		require.Less(t, math.Abs(hunter.EpsilonAt(0)), 2*math.Pi, "tick %d", tick)

		if rawTheta >= math.Pi {
			wrapped = true
			assert.Less(t, hunter.ThetaAt(0), prevTheta)
		}
	}
	assert.True(t, wrapped, "theta never crossed pi")
}

func TestHuntTowardSinglePrey(t *testing.T) {
	e := mustEngine(t, Options{},
		mustFlock(t, "A", flock.Agent{Speed: 1}),
		mustFlock(t, "B", flock.Agent{X: 10}),
	)
	require.NoError(t, e.RefreshAverages())

	d, err := e.Hunt(0, 1)
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())
	assert.InDelta(t, 1.5708, d.Theta[0], 1e-4)
	assert.InDelta(t, 1.5708, d.Epsilon[0], 1e-4)

	ev, err := e.EvadeNearest(0, 1)
	require.NoError(t, err)
	assert.InDelta(t, -1.5708, ev.Theta[0], 1e-4)
	assert.InDelta(t, -1.5708, ev.Epsilon[0], 1e-4)
}

func TestEvadePackTargetsPredatorMean(t *testing.T) {
	e := mustEngine(t, Options{},
		mustFlock(t, "prey", flock.Agent{Speed: 1}),
		mustFlock(t, "pack", flock.Agent{X: 5, Z: 3}, flock.Agent{X: 15, Z: -3}),
	)
	require.NoError(t, e.RefreshAverages())

	pack, err := e.EvadePack(0, 1)
	require.NoError(t, err)

	// mean of the pack is (10, 0, 0), the same geometry as the hunt scenario
	assert.InDelta(t, -math.Pi/2, pack.Theta[0], 1e-9)
	assert.InDelta(t, -math.Pi/2, pack.Epsilon[0], 1e-9)
}

func TestSingleFlockOnlySelfBehaviors(t *testing.T) {
	before := testutil.ToFloat64(kernelDispatches.WithLabelValues("serial", "hunt", "ok")) +
		testutil.ToFloat64(kernelDispatches.WithLabelValues("serial", "evadeNearest", "ok")) +
		testutil.ToFloat64(kernelDispatches.WithLabelValues("serial", "evadePack", "ok"))
	alignBefore := testutil.ToFloat64(kernelDispatches.WithLabelValues("serial", "align", "ok"))

	e := mustEngine(t, Options{}, mustFlock(t, "solo", chainAgents(6, 0)...))
	require.NoError(t, e.AdvanceOneTick())

	after := testutil.ToFloat64(kernelDispatches.WithLabelValues("serial", "hunt", "ok")) +
		testutil.ToFloat64(kernelDispatches.WithLabelValues("serial", "evadeNearest", "ok")) +
		testutil.ToFloat64(kernelDispatches.WithLabelValues("serial", "evadePack", "ok"))
	assert.Equal(t, before, after)
	assert.Equal(t, alignBefore+1, testutil.ToFloat64(kernelDispatches.WithLabelValues("serial", "align", "ok")))

	report := e.LastTick()
	require.Len(t, report.Flocks, 1)
	assert.False(t, report.Flocks[0].Hunted)
	assert.False(t, report.Flocks[0].Evaded)
}

func TestTickRoles(t *testing.T) {
	e := mustEngine(t, Options{}, threeFlocks(t)...)
	require.NoError(t, e.AdvanceOneTick())

	report := e.LastTick()
	assert.Equal(t, uint64(1), report.Tick)
	assert.Equal(t, uint64(1), e.Tick())
	require.Len(t, report.Flocks, 3)

	assert.True(t, report.Flocks[0].Evaded)
	assert.False(t, report.Flocks[0].Hunted)
	for _, fr := range report.Flocks[1:] {
		assert.True(t, fr.Hunted)
		assert.False(t, fr.Evaded)
	}
}

func TestTickCommitsWeightedWrappedSum(t *testing.T) {
	flocks := threeFlocks(t)
	e := mustEngine(t, Options{}, flocks...)
	w := DefaultWeights()
	require.NoError(t, e.RefreshAverages())

	type want struct{ theta, epsilon []float64 }
	expected := make([]want, len(flocks))
	for i, f := range flocks {
		sum := newDeltas(f.Len())
		add := func(d Deltas, err error, weight float64) {
			require.NoError(t, err)
			for j := range sum.Theta {
				sum.Theta[j] += d.Theta[j] * weight
				sum.Epsilon[j] += d.Epsilon[j] * weight
			}
		}
		if i > 0 {
			d, err := e.Hunt(i, i-1)
			add(d, err, w.Hunt)
		} else {
			d, err := e.EvadeNearest(i, i+1)
			add(d, err, w.EvadeNearest)
			d, err = e.EvadePack(i, i+1)
			add(d, err, w.EvadePack)
		}
		d, err := e.Align(i)
		add(d, err, w.Align)
		d, err = e.Separate(i)
		add(d, err, w.Separate)
		d, err = e.Cohere(i)
		add(d, err, w.Cohere)

		expected[i] = want{make([]float64, f.Len()), make([]float64, f.Len())}
		for j := range sum.Theta {
			expected[i].theta[j] = WrapTheta(f.ThetaAt(j) + WrapTheta(sum.Theta[j]))
			expected[i].epsilon[j] = WrapEpsilon(f.EpsilonAt(j) + WrapEpsilon(sum.Epsilon[j]))
		}
	}

	require.NoError(t, e.AdvanceOneTick())

	for i, f := range flocks {
		for j := 0; j < f.Len(); j++ {
			assert.InDelta(t, expected[i].theta[j], f.ThetaAt(j), 1e-12, "flock %d agent %d", i, j)
			assert.InDelta(t, expected[i].epsilon[j], f.EpsilonAt(j), 1e-12, "flock %d agent %d", i, j)
		}
	}
}

func TestCrossFlockReadsIgnoreOrientation(t *testing.T) {
	flocks := threeFlocks(t)
	e := mustEngine(t, Options{}, flocks...)
	require.NoError(t, e.RefreshAverages())

	hunt, err := e.Hunt(1, 0)
	require.NoError(t, err)
	evade, err := e.EvadeNearest(0, 1)
	require.NoError(t, err)

	// prey orientation must not influence the hunter
	for j := 0; j < flocks[0].Len(); j++ {
		flocks[0].AddTheta(0.7, j)
		flocks[0].AddEpsilon(-1.3, j)
	}
	huntAfter, err := e.Hunt(1, 0)
	require.NoError(t, err)
	assert.Equal(t, hunt, huntAfter)

	// predator orientation must not influence the evader
	evade, err = e.EvadeNearest(0, 1)
	require.NoError(t, err)
	for j := 0; j < flocks[1].Len(); j++ {
		flocks[1].AddTheta(0.2, j)
		flocks[1].AddEpsilon(2.1, j)
	}
	evadeAfter, err := e.EvadeNearest(0, 1)
	require.NoError(t, err)
	assert.Equal(t, evade, evadeAfter)
}

func TestTickDeterminism(t *testing.T) {
	run := func() [][]float64 {
		e := mustEngine(t, Options{}, threeFlocks(t)...)
		for i := 0; i < 25; i++ {
			require.NoError(t, e.AdvanceOneTick())
		}
		var out [][]float64
		for _, f := range e.Flocks().Flocks() {
			out = append(out, append([]float64(nil), f.Thetas()...), append([]float64(nil), f.Epsilons()...))
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestOffloadMatchesSerial(t *testing.T) {
	for _, device := range []string{"CPU", "GPU", "ACC"} {
		t.Run(device, func(t *testing.T) {
			big := func() []*flock.Flock {
				return []*flock.Flock{
					mustFlock(t, "prey", chainAgents(300, 0)...),
					mustFlock(t, "hunters", chainAgents(70, 12)...),
				}
			}
			serialFlocks, offloadFlocks := big(), big()
			serial := mustEngine(t, Options{Device: device}, serialFlocks...)
			offload := mustEngine(t, Options{Backend: BackendOffload, Device: device}, offloadFlocks...)
			assert.Equal(t, "offload/"+device, offload.Backend().Name())

			require.NoError(t, serial.RefreshAverages())
			require.NoError(t, offload.RefreshAverages())
			for i := 0; i < 2; i++ {
				s, o := serial.Averages().At(i), offload.Averages().At(i)
				assert.InDelta(t, s.X, o.X, 1e-9)
				assert.InDelta(t, s.Theta, o.Theta, 1e-9)
			}

			hs, err := serial.Hunt(1, 0)
			require.NoError(t, err)
			ho, err := offload.Hunt(1, 0)
			require.NoError(t, err)
			assert.Equal(t, hs, ho)

			for tick := 0; tick < 5; tick++ {
				require.NoError(t, serial.AdvanceOneTick())
				require.NoError(t, offload.AdvanceOneTick())
			}
			for i := range serialFlocks {
				for j := 0; j < serialFlocks[i].Len(); j++ {
					assert.InDelta(t, serialFlocks[i].ThetaAt(j), offloadFlocks[i].ThetaAt(j), 1e-9)
					assert.InDelta(t, serialFlocks[i].EpsilonAt(j), offloadFlocks[i].EpsilonAt(j), 1e-9)
				}
			}
		})
	}
}

func TestInvalidDevice(t *testing.T) {
	c, err := flock.NewCollection(mustFlock(t, "a", flock.Agent{}))
	require.NoError(t, err)

	for _, backend := range []BackendKind{BackendSerial, BackendOffload} {
		_, err = New(c, Options{Backend: backend, Device: "TPU", Logger: quietLogger()})
		assert.ErrorIs(t, err, ErrInvalidDevice)
	}
}

func TestOffloadKernelBinding(t *testing.T) {
	entries := append([]string(nil), BuiltinEntries...)
	entries[1] = "missing"
	_, err := NewOffloadBackend("GPU", BuiltinSources(), entries, nil)
	assert.ErrorIs(t, err, ErrUnknownKernel)

	entries = append([]string(nil), BuiltinEntries...)
	entries[4], entries[5] = entries[5], entries[4]
	_, err = NewOffloadBackend("GPU", BuiltinSources(), entries, nil)
	assert.ErrorIs(t, err, ErrKernelSlot)

	_, err = NewOffloadBackend("GPU", BuiltinSources()[:3], BuiltinEntries[:3], nil)
	assert.Error(t, err)
}

func TestCustomKernelRegistry(t *testing.T) {
	reg := NewKernelRegistry()
	for _, k := range DefaultKernels.List() {
		k.Source = "custom.cl"
		require.NoError(t, reg.Register(k))
	}
	require.NoError(t, reg.Register(Kernel{
		Source: "custom.cl",
		Entry:  "align_none",
		Slot:   SlotAlign,
		Agent:  func(*KernelArgs, int) (float64, float64) { return 0, 0 },
	}))
	assert.Error(t, reg.Register(Kernel{Source: "custom.cl", Entry: "bad", Slot: SlotHunt}))

	sources := []string{"custom.cl", "custom.cl", "custom.cl", "custom.cl", "custom.cl", "custom.cl", "custom.cl"}
	entries := append([]string(nil), BuiltinEntries...)
	entries[SlotAlign] = "align_none"

	e := mustEngine(t, Options{
		Backend:       BackendOffload,
		Device:        "ACC",
		KernelSources: sources,
		KernelEntries: entries,
		Registry:      reg,
	}, mustFlock(t, "a", chainAgents(4, 0)...))
	require.NoError(t, e.RefreshAverages())

	d, err := e.Align(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, d.Theta)
}

func TestNeighborPolicies(t *testing.T) {
	target := mustFlock(t, "t",
		flock.Agent{X: 1},
		flock.Agent{X: 50},
		flock.Agent{X: 3},
	)
	assert.Equal(t, 2, NeighborLast.Find(r3Zero, target))
	assert.Equal(t, 0, NeighborNearest.Find(r3Zero, target))

	far := mustFlock(t, "far", flock.Agent{X: 1e9}, flock.Agent{X: 2e9})
	assert.Equal(t, 0, NeighborLast.Find(r3Zero, far))
	assert.Equal(t, 0, NeighborNearest.Find(r3Zero, far))

	_, err := ParseNeighborPolicy("closest")
	assert.Error(t, err)
	p, err := ParseNeighborPolicy("")
	require.NoError(t, err)
	assert.Equal(t, NeighborLast, p)
}

func TestNonFinitePolicy(t *testing.T) {
	// a lone agent sits on its own flock mean, so separate and cohere are NaN
	lone := flock.Agent{X: 2, Y: 2, Z: 2, Speed: 1, Theta: 0.4, Epsilon: 0.9}

	zero := mustEngine(t, Options{}, mustFlock(t, "lone", lone))
	require.NoError(t, zero.AdvanceOneTick())
	f := zero.Flocks().At(0)
	assert.Equal(t, 0.4, f.ThetaAt(0))
	assert.Equal(t, 0.9, f.EpsilonAt(0))
	assert.Equal(t, 1, zero.LastTick().Flocks[0].NonFinite)

	prop := mustEngine(t, Options{NonFinitePolicy: NonFinitePropagate}, mustFlock(t, "lone", lone))
	require.NoError(t, prop.AdvanceOneTick())
	assert.True(t, math.IsNaN(prop.Flocks().At(0).ThetaAt(0)))

	_, err := ParseNonFinitePolicy("clamp")
	assert.Error(t, err)
}

type failingBackend struct {
	*SerialBackend
	failOn KernelSlot
}

func (b failingBackend) Dispatch(slot KernelSlot, args *KernelArgs) (Deltas, error) {
	if slot == b.failOn && args.Self.Name() == "mid" {
		return Deltas{}, errors.New("device lost")
	}
	return b.SerialBackend.Dispatch(slot, args)
}

func TestDispatchFailureAbortsTick(t *testing.T) {
	flocks := threeFlocks(t)
	before := append([]float64(nil), flocks[0].Thetas()...)
	midBefore := append([]float64(nil), flocks[1].Thetas()...)

	e := mustEngine(t, Options{Strategy: failingBackend{NewSerialBackend(), SlotSeparate}}, flocks...)
	err := e.AdvanceOneTick()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")
	assert.Equal(t, uint64(0), e.Tick())

	// flock 0 was committed before the failure, flock 1 was not
	assert.NotEqual(t, before, flocks[0].Thetas())
	assert.Equal(t, midBefore, flocks[1].Thetas())
}

func TestOffloadRecoversKernelPanic(t *testing.T) {
	reg := NewKernelRegistry()
	for _, k := range DefaultKernels.List() {
		require.NoError(t, reg.Register(k))
	}
	require.NoError(t, reg.Register(Kernel{
		Source: BuiltinSource,
		Entry:  "cohere_broken",
		Slot:   SlotCohere,
		Agent:  func(*KernelArgs, int) (float64, float64) { panic("out of resources") },
	}))
	entries := append([]string(nil), BuiltinEntries...)
	entries[SlotCohere] = "cohere_broken"

	b, err := NewOffloadBackend("CPU", BuiltinSources(), entries, reg)
	require.NoError(t, err)
	e := mustEngine(t, Options{Strategy: b}, mustFlock(t, "a", chainAgents(3, 0)...))

	err = e.AdvanceOneTick()
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestBehaviorIndexValidation(t *testing.T) {
	e := mustEngine(t, Options{}, mustFlock(t, "a", flock.Agent{}))
	_, err := e.Hunt(0, 3)
	assert.ErrorIs(t, err, ErrFlockIndex)
	_, err = e.Align(-1)
	assert.ErrorIs(t, err, ErrFlockIndex)
}
