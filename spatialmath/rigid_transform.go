package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// RigidTransform is a rotation followed by a translation: p' = R·p + t.
type RigidTransform struct {
	rotation    *RotationMatrix
	translation r3.Vector
}

// NewRigidTransform returns a transform with the given rotation and translation.
// A nil rotation is treated as the identity.
func NewRigidTransform(rotation *RotationMatrix, translation r3.Vector) *RigidTransform {
	if rotation == nil {
		rotation = NewIdentityRotation()
	}
	return &RigidTransform{rotation: rotation, translation: translation}
}

// NewIdentityTransform returns the transform that leaves points unchanged.
func NewIdentityTransform() *RigidTransform {
	return NewRigidTransform(NewIdentityRotation(), r3.Vector{})
}

// NewTranslation returns a pure translation.
func NewTranslation(t r3.Vector) *RigidTransform {
	return NewRigidTransform(NewIdentityRotation(), t)
}

// Rotation returns R.
func (rt *RigidTransform) Rotation() *RotationMatrix {
	return rt.rotation
}

// Translation returns t.
func (rt *RigidTransform) Translation() r3.Vector {
	return rt.translation
}

// Transform applies the transform to p.
func (rt *RigidTransform) Transform(p r3.Vector) r3.Vector {
	return rt.rotation.Mul(p).Add(rt.translation)
}

// TransformAll applies the transform to every point and returns a new slice.
func (rt *RigidTransform) TransformAll(points []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = rt.Transform(p)
	}
	return out
}

// Compose returns the transform that applies rt first and then next.
func (rt *RigidTransform) Compose(next *RigidTransform) *RigidTransform {
	return &RigidTransform{
		rotation:    next.rotation.MulMatrix(rt.rotation),
		translation: next.rotation.Mul(rt.translation).Add(next.translation),
	}
}

// Inverse returns the transform that undoes rt.
func (rt *RigidTransform) Inverse() *RigidTransform {
	rInv := rt.rotation.Transpose()
	return &RigidTransform{
		rotation:    rInv,
		translation: rInv.Mul(rt.translation).Mul(-1),
	}
}

// ApproxEqual compares rotations element-wise within rotTol and translations within transTol.
func (rt *RigidTransform) ApproxEqual(other *RigidTransform, rotTol, transTol float64) bool {
	if !rt.rotation.ApproxEqual(other.rotation, rotTol) {
		return false
	}
	return rt.translation.Sub(other.translation).Norm() <= transTol
}

func (rt *RigidTransform) String() string {
	return fmt.Sprintf("R=%v t=(%.6f, %.6f, %.6f)", rt.rotation, rt.translation.X, rt.translation.Y, rt.translation.Z)
}
