// Package kalman provides a steady-state Kalman filter for scalar
// measurements with a constant-velocity state model.
package kalman

import "gonum.org/v1/gonum/mat"

// KF1D filters a scalar measurement into a [value, rate] state using a
// precomputed steady-state gain.
type KF1D struct {
	x  *mat.VecDense // state
	a  *mat.Dense    // transition
	c  *mat.Dense    // observation, 1x2
	k  *mat.VecDense // gain
	ak *mat.Dense    // A - K*C*A, cached
}

// NewKF1D builds a filter. x0 is the initial state, a is the 2x2
// transition, c the 1x2 observation row and k the 2x1 gain.
func NewKF1D(x0 [2]float64, a [2][2]float64, c [2]float64, k [2]float64) *KF1D {
	f := &KF1D{
		x: mat.NewVecDense(2, []float64{x0[0], x0[1]}),
		a: mat.NewDense(2, 2, []float64{a[0][0], a[0][1], a[1][0], a[1][1]}),
		c: mat.NewDense(1, 2, []float64{c[0], c[1]}),
		k: mat.NewVecDense(2, []float64{k[0], k[1]}),
	}
	var kc, kca mat.Dense
	kc.Mul(f.k, f.c)
	kca.Mul(&kc, f.a)
	f.ak = mat.NewDense(2, 2, nil)
	f.ak.Sub(f.a, &kca)
	return f
}

// NewSpeedFilter returns the filter used for vehicle speed sampled at
// 100 Hz.
func NewSpeedFilter(v0 float64) *KF1D {
	const dt = 0.01
	return NewKF1D(
		[2]float64{v0, 0},
		[2][2]float64{{1, dt}, {0, 1}},
		[2]float64{1, 0},
		[2]float64{0.17406039, 1.65925647},
	)
}

// Update folds in one measurement and returns the new state.
func (f *KF1D) Update(meas float64) (value, rate float64) {
	var next mat.VecDense
	next.MulVec(f.ak, f.x)
	next.AddScaledVec(&next, meas, f.k)
	f.x.CopyVec(&next)
	return f.x.AtVec(0), f.x.AtVec(1)
}

// State returns the current estimate.
func (f *KF1D) State() (value, rate float64) {
	return f.x.AtVec(0), f.x.AtVec(1)
}

// Reset replaces the state.
func (f *KF1D) Reset(value, rate float64) {
	f.x.SetVec(0, value)
	f.x.SetVec(1, rate)
}
