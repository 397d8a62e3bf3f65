package transform

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/utils"
)

// unitIntrinsics has fx = fy = 1 and the principal point at (1.5, 1.5), stored transposed.
func unitIntrinsics(t *testing.T) *CameraIntrinsics {
	t.Helper()
	params, err := NewCameraIntrinsicsFromMatrix([]float64{1, 0, 0, 0, 1, 0, 1.5, 1.5, 1}, 1)
	test.That(t, err, test.ShouldBeNil)
	return params
}

func constantGrid(t *testing.T, width, height int, d float64) *rimage.DepthGrid {
	t.Helper()
	data := make([]float64, width*height)
	for i := range data {
		data[i] = d
	}
	grid, err := rimage.NewDepthGrid(width, height, data)
	test.That(t, err, test.ShouldBeNil)
	return grid
}

func TestUnprojectConstantGrid(t *testing.T) {
	raw, err := Unproject(constantGrid(t, 4, 4, 1.0), unitIntrinsics(t), 0, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw.Len(), test.ShouldEqual, 16)
	test.That(t, raw.ValidCount(), test.ShouldEqual, 16)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			p := raw.Points[row*4+col]
			test.That(t, p.Valid, test.ShouldBeTrue)
			test.That(t, p.Position, test.ShouldResemble, r3.Vector{X: float64(col) - 1.5, Y: float64(row) - 1.5, Z: 1})
		}
	}
}

func TestUnprojectBelowMinDepth(t *testing.T) {
	raw, err := Unproject(constantGrid(t, 4, 4, 1.0), unitIntrinsics(t), 1.5, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw.ValidCount(), test.ShouldEqual, 0)
	for _, p := range raw.SentinelBuffer() {
		test.That(t, p, test.ShouldResemble, pointcloud.SentinelPoint)
	}

	cloud, err := pointcloud.Filter(raw, pointcloud.NewUniformColorBuffer(16, pointcloud.DefaultColor), 4, 4, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 0)

	icp, err := pointcloud.NewICPRegistrar(10, 1e-9, 1, nil)
	test.That(t, err, test.ShouldBeNil)
	_, err = icp.Align(context.Background(), cloud, cloud)
	test.That(t, errors.Is(err, utils.ErrInvalidInput), test.ShouldBeTrue)
}

func TestUnprojectPrincipalPoint(t *testing.T) {
	// principal point on a pixel center
	params := &CameraIntrinsics{Fx: 2.5, Fy: 3.5, Ppx: 2, Ppy: 1, Scale: 1}
	for _, d := range []float64{0.001, 0.3, 1, 7.25, 99.9} {
		raw, err := Unproject(constantGrid(t, 5, 3, d), params, 0, 100)
		test.That(t, err, test.ShouldBeNil)
		p := raw.At(1, 2)
		test.That(t, p.Valid, test.ShouldBeTrue)
		test.That(t, p.Position.X, test.ShouldEqual, 0.)
		test.That(t, p.Position.Y, test.ShouldEqual, 0.)
		test.That(t, p.Position.Z, test.ShouldEqual, d)
	}
}

func TestUnprojectBounds(t *testing.T) {
	data := []float64{
		0, 0.5, 1, 1.5,
		2, 2.5, 3, -1,
		0.75, 1.25, 2.75, 3.5,
	}
	grid, err := rimage.NewDepthGrid(4, 3, data)
	test.That(t, err, test.ShouldBeNil)
	minDepth, maxDepth := 0.5, 3.0

	raw, err := Unproject(grid, unitIntrinsics(t), minDepth, maxDepth)
	test.That(t, err, test.ShouldBeNil)
	cloud, err := pointcloud.Filter(raw, nil, 4, 3, 1)
	test.That(t, err, test.ShouldBeNil)

	var expectedZ []float64
	for i, d := range data {
		inside := d > minDepth && d < maxDepth
		test.That(t, raw.Points[i].Valid, test.ShouldEqual, inside)
		if inside {
			test.That(t, raw.Points[i].Position.Z, test.ShouldEqual, d)
			expectedZ = append(expectedZ, d)
		} else {
			test.That(t, raw.SentinelBuffer()[i], test.ShouldResemble, pointcloud.SentinelPoint)
		}
	}
	test.That(t, cloud.Size(), test.ShouldEqual, len(expectedZ))
	for i, p := range cloud.Points() {
		test.That(t, p.Z, test.ShouldEqual, expectedZ[i])
	}
}

func TestUnprojectErrors(t *testing.T) {
	grid := constantGrid(t, 2, 2, 1)
	_, err := Unproject(grid, unitIntrinsics(t), 2, 1)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	_, err = Unproject(grid, &CameraIntrinsics{Fx: 0, Fy: 1}, 0, 2)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	_, err = Unproject(nil, unitIntrinsics(t), 0, 2)
	test.That(t, errors.Is(err, utils.ErrInvalidInput), test.ShouldBeTrue)

	_, err = NewDepthUnprojector(nil, 0, 2, false)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)
}

func TestDepthUnprojectorOrientation(t *testing.T) {
	u, err := NewDepthUnprojector(unitIntrinsics(t), 0, 10, false)
	test.That(t, err, test.ShouldBeNil)

	// 3 stored rows x 2 stored columns, marker at stored (0, 1)
	stored := [][]float64{
		{1, 5},
		{1, 1},
		{1, 1},
	}
	raw, err := u.UnprojectRaw(stored)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw.Width, test.ShouldEqual, 3)
	test.That(t, raw.Height, test.ShouldEqual, 2)

	row, col := rimage.OrientedIndex(3, 0, 1)
	test.That(t, row, test.ShouldEqual, 1)
	test.That(t, col, test.ShouldEqual, 2)
	marker := raw.At(row, col)
	test.That(t, marker.Position.Z, test.ShouldEqual, 5.)
	test.That(t, marker.Position.X, test.ShouldEqual, 5*(2-1.5))
	test.That(t, marker.Position.Y, test.ShouldEqual, 5*(1-1.5))

	_, err = u.OrientWithSize(stored, 2, 3)
	test.That(t, errors.Is(err, utils.ErrShape), test.ShouldBeTrue)
	grid, err := u.OrientWithSize(stored, 3, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grid.At(1, 2), test.ShouldEqual, 5.)

	_, err = u.UnprojectRaw([][]float64{{1, 2}, {3}})
	test.That(t, errors.Is(err, utils.ErrShape), test.ShouldBeTrue)
}

func TestDepthUnprojectorInvert(t *testing.T) {
	u, err := NewDepthUnprojector(unitIntrinsics(t), 0, 10, true)
	test.That(t, err, test.ShouldBeNil)

	stored := [][]float64{
		{1, 2},
		{3, 4},
	}
	grid, err := u.Orient(stored)
	test.That(t, err, test.ShouldBeNil)
	// oriented is [[3 1] [4 2]], inverted against max 4
	test.That(t, grid.Data(), test.ShouldResemble, []float64{1, 3, 0, 2})

	raw, err := u.UnprojectRaw(stored)
	test.That(t, err, test.ShouldBeNil)
	// the former maximum becomes depth 0 and falls outside (0, 10)
	test.That(t, raw.ValidCount(), test.ShouldEqual, 3)
	test.That(t, raw.At(1, 0).Valid, test.ShouldBeFalse)
	test.That(t, raw.At(0, 1).Position.Z, test.ShouldEqual, 3.)
}
