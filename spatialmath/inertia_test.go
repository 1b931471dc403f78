package spatialmath

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestInertiaReexpress(t *testing.T) {
	i := NewDiagonalInertia(1, 2, 3)
	same := i.Reexpress(NewRotation())
	test.That(t, same, test.ShouldResemble, i)

	// A quarter turn about z swaps the x and y moments.
	rotated := i.Reexpress(rotZ(3.14159265358979 / 2))
	d := rotated.Diagonal()
	test.That(t, d.X, test.ShouldAlmostEqual, 2)
	test.That(t, d.Y, test.ShouldAlmostEqual, 1)
	test.That(t, d.Z, test.ShouldAlmostEqual, 3)
}

func TestParallelAxis(t *testing.T) {
	// Unit mass displaced along x: no change about x, +m*d² about y and z.
	i := ParallelAxis(NewDiagonalInertia(1, 1, 1), 1, r3.Vector{X: 1})
	test.That(t, i.Diagonal(), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 2})

	// Off-diagonal terms appear for a diagonal displacement.
	i = ParallelAxis(Inertia{}, 2, r3.Vector{X: 1, Y: 1})
	test.That(t, i[0], test.ShouldAlmostEqual, 2)   // 2*(2-1)
	test.That(t, i[1], test.ShouldAlmostEqual, -2)  // -2*1*1
	test.That(t, i[4], test.ShouldAlmostEqual, 2)
	test.That(t, i[8], test.ShouldAlmostEqual, 4)   // 2*2
}

func TestParallelAxisZeroDisplacement(t *testing.T) {
	i := NewDiagonalInertia(0.4, 0.5, 0.6)
	test.That(t, ParallelAxis(i, 10, r3.Vector{}), test.ShouldResemble, i)
}
