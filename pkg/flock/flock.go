// Package flock holds the agent storage the flocking engine reads from and
// commits orientation changes into.
package flock

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrEmptyFlock is returned when a flock is built with no agents.
	ErrEmptyFlock = errors.New("flock must contain at least one agent")
	// ErrNegativeSpeed is returned when an agent has a negative speed.
	ErrNegativeSpeed = errors.New("agent speed must be non-negative")
	// ErrNonFinite is returned when an agent attribute is NaN or infinite.
	ErrNonFinite = errors.New("agent attribute is not finite")
)

// Agent is the initial state of a single flock member.
type Agent struct {
	X       float64 `csv:"x" yaml:"x"`
	Y       float64 `csv:"y" yaml:"y"`
	Z       float64 `csv:"z" yaml:"z"`
	Speed   float64 `csv:"speed" yaml:"speed"`
	Theta   float64 `csv:"theta" yaml:"theta"`
	Epsilon float64 `csv:"epsilon" yaml:"epsilon"`
}

// Flock is a fixed-size group of agents stored as parallel arrays.
// The agent count never changes after New.
type Flock struct {
	name    string
	x       []float64
	y       []float64
	z       []float64
	speed   []float64
	theta   []float64
	epsilon []float64
}

// New creates a flock from its initial agents
func New(name string, agents []Agent) (*Flock, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("flock %q: %w", name, ErrEmptyFlock)
	}

	n := len(agents)
	f := &Flock{
		name:    name,
		x:       make([]float64, n),
		y:       make([]float64, n),
		z:       make([]float64, n),
		speed:   make([]float64, n),
		theta:   make([]float64, n),
		epsilon: make([]float64, n),
	}

	for i, a := range agents {
		if !finite(a.X, a.Y, a.Z, a.Speed, a.Theta, a.Epsilon) {
			return nil, fmt.Errorf("flock %q agent %d: %w", name, i, ErrNonFinite)
		}
		if a.Speed < 0 {
			return nil, fmt.Errorf("flock %q agent %d: %w", name, i, ErrNegativeSpeed)
		}
		f.x[i], f.y[i], f.z[i] = a.X, a.Y, a.Z
		f.speed[i] = a.Speed
		f.theta[i] = a.Theta
		f.epsilon[i] = a.Epsilon
	}

	return f, nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Name returns the flock name
func (f *Flock) Name() string { return f.name }

// Len returns the number of agents in the flock
func (f *Flock) Len() int { return len(f.x) }

// PosX returns the x coordinate of agent i
func (f *Flock) PosX(i int) float64 { return f.x[i] }

// PosY returns the y coordinate of agent i
func (f *Flock) PosY(i int) float64 { return f.y[i] }

// PosZ returns the z coordinate of agent i
func (f *Flock) PosZ(i int) float64 { return f.z[i] }

// SpeedAt returns the speed of agent i
func (f *Flock) SpeedAt(i int) float64 { return f.speed[i] }

// ThetaAt returns the polar angle of agent i
func (f *Flock) ThetaAt(i int) float64 { return f.theta[i] }

// EpsilonAt returns the azimuthal angle of agent i
func (f *Flock) EpsilonAt(i int) float64 { return f.epsilon[i] }

// Position returns the agent position as a vector
func (f *Flock) Position(i int) r3.Vec {
	return r3.Vec{X: f.x[i], Y: f.y[i], Z: f.z[i]}
}

// The whole-array accessors below alias flock storage. Callers must not
// modify the returned slices.

// PositionsX returns the x coordinates of all agents
func (f *Flock) PositionsX() []float64 { return f.x }

// PositionsY returns the y coordinates of all agents
func (f *Flock) PositionsY() []float64 { return f.y }

// PositionsZ returns the z coordinates of all agents
func (f *Flock) PositionsZ() []float64 { return f.z }

// Speeds returns the speeds of all agents
func (f *Flock) Speeds() []float64 { return f.speed }

// Thetas returns the polar angles of all agents
func (f *Flock) Thetas() []float64 { return f.theta }

// Epsilons returns the azimuthal angles of all agents
func (f *Flock) Epsilons() []float64 { return f.epsilon }

// AddTheta adds delta to the stored theta of agent i. No wrapping is applied.
func (f *Flock) AddTheta(delta float64, i int) {
	f.theta[i] += delta
}

// AddEpsilon adds delta to the stored epsilon of agent i. No wrapping is applied.
func (f *Flock) AddEpsilon(delta float64, i int) {
	f.epsilon[i] += delta
}

// SetTheta replaces the stored theta of agent i
func (f *Flock) SetTheta(theta float64, i int) {
	f.theta[i] = theta
}

// SetEpsilon replaces the stored epsilon of agent i
func (f *Flock) SetEpsilon(epsilon float64, i int) {
	f.epsilon[i] = epsilon
}

// Agent returns a copy of agent i's current state
func (f *Flock) Agent(i int) Agent {
	return Agent{
		X:       f.x[i],
		Y:       f.y[i],
		Z:       f.z[i],
		Speed:   f.speed[i],
		Theta:   f.theta[i],
		Epsilon: f.epsilon[i],
	}
}

// Agents returns a copy of every agent's current state
func (f *Flock) Agents() []Agent {
	out := make([]Agent, f.Len())
	for i := range out {
		out[i] = f.Agent(i)
	}
	return out
}
