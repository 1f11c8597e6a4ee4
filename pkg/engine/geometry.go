package engine

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// ThetaRange is the wrap modulus for polar angles.
	ThetaRange = math.Pi
	// EpsilonRange is the wrap modulus for azimuthal angles.
	EpsilonRange = 2 * math.Pi
)

// WrapTheta wraps a polar angle or delta. The result keeps the sign of v,
// so negative inputs stay negative.
func WrapTheta(v float64) float64 {
	return math.Mod(v, ThetaRange)
}

// WrapEpsilon wraps an azimuthal angle or delta with the same sign rule as
// WrapTheta.
func WrapEpsilon(v float64) float64 {
	return math.Mod(v, EpsilonRange)
}

// heading reconstructs a velocity vector from speed and spherical angles.
func heading(speed, theta, epsilon float64) r3.Vec {
	st, ct := math.Sincos(theta)
	se, ce := math.Sincos(epsilon)
	return r3.Vec{
		X: speed * st * ce,
		Y: speed * st * se,
		Z: speed * ct,
	}
}

// lawOfCosines returns the angle between a and b, derived from the third
// side c = a - b. Zero-length sides yield NaN.
func lawOfCosines(a, b r3.Vec) float64 {
	c := r3.Sub(a, b)
	la, lb, lc := r3.Norm(a), r3.Norm(b), r3.Norm(c)
	return math.Acos(-(lc*lc - la*la - lb*lb) / (2 * la * lb))
}

// steer computes the wrapped theta and epsilon turn toward displacement a
// for an agent moving with the given speed and orientation. The theta delta
// uses the heading projected to epsilon = 0, the epsilon delta the heading
// with theta = 0.
func steer(a r3.Vec, speed, theta, epsilon float64) (float64, float64) {
	dTheta := lawOfCosines(a, heading(speed, theta, 0))
	dEpsilon := lawOfCosines(a, heading(speed, 0, epsilon))
	return WrapTheta(dTheta), WrapEpsilon(dEpsilon)
}
