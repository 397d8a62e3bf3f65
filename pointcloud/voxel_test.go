package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/depthcloud/utils"
)

func TestGetVoxelCoordinates(t *testing.T) {
	// Get point coordinates in a voxel grid
	voxCoord := GetVoxelCoordinates(r3.Vector{X: 1.5, Y: 1.1, Z: 0.5}, r3.Vector{}, 1.0)
	test.That(t, voxCoord, test.ShouldResemble, VoxelCoords{1, 1, 0})

	voxCoord = GetVoxelCoordinates(r3.Vector{X: -0.5, Y: 2, Z: 0}, r3.Vector{X: -1}, 0.5)
	test.That(t, voxCoord, test.ShouldResemble, VoxelCoords{1, 4, 0})
}

func TestVoxelDownsample(t *testing.T) {
	cloud, err := New([]r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 0.2, Y: 0.2, Z: 0.2},
		{X: 1.1, Y: 0, Z: 0},
		{X: 1.3, Y: 0.4, Z: 0.2},
		{X: 0, Y: 0, Z: 2.5},
	}, ColorBuffer{
		{R: 100, A: 255},
		{R: 200, A: 255},
		{G: 50, A: 255},
		{G: 150, A: 255},
		{B: 255, A: 255},
	})
	test.That(t, err, test.ShouldBeNil)

	down, err := VoxelDownsample(cloud, 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, down.Size(), test.ShouldEqual, 3)
	test.That(t, len(down.Colors()), test.ShouldEqual, 3)

	// keys sort as (0,0,0), (0,0,2), (1,0,0)
	p, c := down.At(0)
	test.That(t, p.Sub(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}).Norm(), test.ShouldBeLessThan, 1e-12)
	test.That(t, c, test.ShouldResemble, color.NRGBA{R: 150, A: 255})
	p, _ = down.At(1)
	test.That(t, p, test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 2.5})
	p, c = down.At(2)
	test.That(t, p.Sub(r3.Vector{X: 1.2, Y: 0.2, Z: 0.1}).Norm(), test.ShouldBeLessThan, 1e-12)
	test.That(t, c, test.ShouldResemble, color.NRGBA{G: 100, A: 255})

	_, err = VoxelDownsample(cloud, 0)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	empty, err := VoxelDownsample(NewEmpty(), 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Size(), test.ShouldEqual, 0)
}
