package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/depthcloud/utils"
)

// makeGrid returns a width x height raw cloud whose point at (r, c) is (c, r, 1)
// and is invalid when invalid(r, c), plus a color buffer encoding the index.
func makeGrid(width, height int, invalid func(r, c int) bool) (*RawCloud, ColorBuffer) {
	rc := NewRawCloud(width, height)
	colors := make(ColorBuffer, width*height)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			i := r*width + c
			colors[i] = color.NRGBA{R: uint8(r), G: uint8(c), A: 255}
			if invalid != nil && invalid(r, c) {
				continue
			}
			rc.Points[i] = GridPoint{Position: r3.Vector{X: float64(c), Y: float64(r), Z: 1}, Valid: true}
		}
	}
	return rc, colors
}

func TestFilterDecimationOrder(t *testing.T) {
	rc, colors := makeGrid(5, 4, nil)
	cloud, err := Filter(rc, colors, 5, 4, 2)
	test.That(t, err, test.ShouldBeNil)

	// rows 0, 2 and columns 0, 2, 4
	test.That(t, cloud.Size(), test.ShouldEqual, 6)
	expected := []r3.Vector{
		{X: 0, Y: 0, Z: 1}, {X: 2, Y: 0, Z: 1}, {X: 4, Y: 0, Z: 1},
		{X: 0, Y: 2, Z: 1}, {X: 2, Y: 2, Z: 1}, {X: 4, Y: 2, Z: 1},
	}
	test.That(t, cloud.Points(), test.ShouldResemble, expected)
	for i, p := range cloud.Points() {
		c := cloud.Colors()[i]
		test.That(t, int(c.R), test.ShouldEqual, int(p.Y))
		test.That(t, int(c.G), test.ShouldEqual, int(p.X))
	}
}

func TestFilterCompaction(t *testing.T) {
	rc, colors := makeGrid(4, 3, func(r, c int) bool { return (r+c)%2 == 1 })
	cloud, err := Filter(rc, colors, 4, 3, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 6)
	test.That(t, len(cloud.Colors()), test.ShouldEqual, cloud.Size())
	for i, p := range cloud.Points() {
		test.That(t, (int(p.X)+int(p.Y))%2, test.ShouldEqual, 0)
		c := cloud.Colors()[i]
		test.That(t, int(c.R), test.ShouldEqual, int(p.Y))
		test.That(t, int(c.G), test.ShouldEqual, int(p.X))
	}
	// inputs untouched
	test.That(t, rc.ValidCount(), test.ShouldEqual, 6)
	test.That(t, len(colors), test.ShouldEqual, 12)
}

func TestFilterLengthInvariant(t *testing.T) {
	for _, stride := range []int{1, 2, 3, 7} {
		for _, mod := range []int{1, 2, 3, 5} {
			rc, colors := makeGrid(9, 7, func(r, c int) bool { return (r*9+c)%mod == 0 })
			cloud, err := Filter(rc, colors, 9, 7, stride)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(cloud.Points()), test.ShouldEqual, len(cloud.Colors()))
		}
	}
}

func TestFilterIdempotent(t *testing.T) {
	rc, colors := makeGrid(6, 5, func(r, c int) bool { return c == 3 })
	for _, stride := range []int{1, 2} {
		once, err := Filter(rc, colors, 6, 5, stride)
		test.That(t, err, test.ShouldBeNil)

		// a filtered cloud has its own single-row index space and no invalid entries
		flat := RawCloudFromPoints(once.Points())
		twice, err := Filter(flat, once.Colors(), flat.Width, flat.Height, 1)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, twice.Points(), test.ShouldResemble, once.Points())
		test.That(t, twice.Colors(), test.ShouldResemble, once.Colors())
	}
}

func TestFilterErrors(t *testing.T) {
	rc, colors := makeGrid(3, 3, nil)

	_, err := Filter(rc, colors, 3, 3, 0)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	_, err = Filter(rc, colors, 4, 3, 1)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	_, err = Filter(rc, colors[:8], 3, 3, 1)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	_, err = Filter(nil, colors, 3, 3, 1)
	test.That(t, errors.Is(err, utils.ErrInvalidInput), test.ShouldBeTrue)

	_, err = NewPointCloudFilter(0)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)

	f, err := NewPointCloudFilter(3)
	test.That(t, err, test.ShouldBeNil)
	cloud, err := f.Apply(rc, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 1)
	test.That(t, cloud.MetaData().HasColor, test.ShouldBeFalse)
}
