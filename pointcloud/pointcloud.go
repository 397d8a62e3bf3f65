// Package pointcloud defines the grid-aligned raw clouds produced by unprojection,
// the compact colored clouds produced by filtering, and the registration of two
// such clouds onto each other.
package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/depthcloud/utils"
)

// DefaultColor is used for points that were loaded without color.
var DefaultColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// ColorBuffer holds one color per point, aligned by index with the points it accompanies.
type ColorBuffer []color.NRGBA

// NewUniformColorBuffer returns n copies of c.
func NewUniformColorBuffer(n int, c color.NRGBA) ColorBuffer {
	buf := make(ColorBuffer, n)
	for i := range buf {
		buf[i] = c
	}
	return buf
}

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasColor bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData creates a new MetaData with bounds that any point will widen.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge widens the bounds to include p.
func (meta *MetaData) Merge(p r3.Vector) {
	meta.MaxX = math.Max(meta.MaxX, p.X)
	meta.MaxY = math.Max(meta.MaxY, p.Y)
	meta.MaxZ = math.Max(meta.MaxZ, p.Z)
	meta.MinX = math.Min(meta.MinX, p.X)
	meta.MinY = math.Min(meta.MinY, p.Y)
	meta.MinZ = math.Min(meta.MinZ, p.Z)
}

// Extent returns the size of the bounding box along each axis, or the zero
// vector for an empty cloud.
func (meta *MetaData) Extent() r3.Vector {
	if meta.MaxX < meta.MinX {
		return r3.Vector{}
	}
	return r3.Vector{X: meta.MaxX - meta.MinX, Y: meta.MaxY - meta.MinY, Z: meta.MaxZ - meta.MinZ}
}

// PointCloud is an ordered list of valid points with one color per point.
// It is never modified after construction; operations return new clouds.
type PointCloud struct {
	points []r3.Vector
	colors ColorBuffer
	meta   MetaData
}

// New returns a cloud over the given points and colors, which must have the same
// length. A nil color buffer gives every point DefaultColor. The slices are not copied.
func New(points []r3.Vector, colors ColorBuffer) (*PointCloud, error) {
	meta := NewMetaData()
	if colors == nil {
		colors = NewUniformColorBuffer(len(points), DefaultColor)
	} else {
		if len(colors) != len(points) {
			return nil, utils.NewInvalidInputError("cloud has %d points but %d colors", len(points), len(colors))
		}
		meta.HasColor = true
	}
	for _, p := range points {
		meta.Merge(p)
	}
	return &PointCloud{points: points, colors: colors, meta: meta}, nil
}

// NewEmpty returns a cloud with no points.
func NewEmpty() *PointCloud {
	return &PointCloud{meta: NewMetaData()}
}

// Size returns the number of points in the cloud.
func (cloud *PointCloud) Size() int {
	if cloud == nil {
		return 0
	}
	return len(cloud.points)
}

// Points returns the points. Callers must not modify the returned slice.
func (cloud *PointCloud) Points() []r3.Vector {
	return cloud.points
}

// Colors returns the color buffer. Callers must not modify the returned slice.
func (cloud *PointCloud) Colors() ColorBuffer {
	return cloud.colors
}

// At returns the i-th point and its color.
func (cloud *PointCloud) At(i int) (r3.Vector, color.NRGBA) {
	return cloud.points[i], cloud.colors[i]
}

// MetaData returns the bounds and color information for the cloud.
func (cloud *PointCloud) MetaData() MetaData {
	return cloud.meta
}

// Centroid returns the mean of all points, or the zero vector for an empty cloud.
func (cloud *PointCloud) Centroid() r3.Vector {
	return centroid(cloud.points)
}

// Concat returns a new cloud holding the points of cloud followed by those of
// other, with colors in the same order.
func (cloud *PointCloud) Concat(other *PointCloud) *PointCloud {
	points := make([]r3.Vector, 0, cloud.Size()+other.Size())
	colors := make(ColorBuffer, 0, cloud.Size()+other.Size())
	points = append(points, cloud.points...)
	points = append(points, other.points...)
	colors = append(colors, cloud.colors...)
	colors = append(colors, other.colors...)

	meta := NewMetaData()
	meta.HasColor = cloud.meta.HasColor || other.meta.HasColor
	for _, p := range points {
		meta.Merge(p)
	}
	return &PointCloud{points: points, colors: colors, meta: meta}
}

func centroid(points []r3.Vector) r3.Vector {
	if len(points) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}
