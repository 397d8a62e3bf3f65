package pointcloud

import (
	"github.com/golang/geo/r3"

	"go.viam.com/depthcloud/utils"
)

// SentinelPoint is how an invalid sample is written when a raw cloud is
// flattened into a plain point buffer.
var SentinelPoint = r3.Vector{X: 0, Y: 0, Z: -1}

// GridPoint is one cell of a raw cloud. Position is only meaningful when Valid is set.
type GridPoint struct {
	Position r3.Vector
	Valid    bool
}

// RawCloud is the grid-aligned output of unprojection. Point i corresponds to
// pixel (i / Width, i % Width) so it stays aligned with a ColorBuffer of the same
// resolution until it is compacted by Filter.
type RawCloud struct {
	Width  int
	Height int
	Points []GridPoint
}

// NewRawCloud allocates a cloud with every cell invalid.
func NewRawCloud(width, height int) *RawCloud {
	return &RawCloud{Width: width, Height: height, Points: make([]GridPoint, width*height)}
}

// Len returns the number of cells, valid or not.
func (rc *RawCloud) Len() int {
	return len(rc.Points)
}

// At returns the cell for pixel (row, col).
func (rc *RawCloud) At(row, col int) GridPoint {
	return rc.Points[row*rc.Width+col]
}

// ValidCount returns the number of valid cells.
func (rc *RawCloud) ValidCount() int {
	n := 0
	for _, p := range rc.Points {
		if p.Valid {
			n++
		}
	}
	return n
}

// SentinelBuffer flattens the cloud, writing SentinelPoint for every invalid cell.
func (rc *RawCloud) SentinelBuffer() []r3.Vector {
	out := make([]r3.Vector, len(rc.Points))
	for i, p := range rc.Points {
		if p.Valid {
			out[i] = p.Position
		} else {
			out[i] = SentinelPoint
		}
	}
	return out
}

// RawCloudFromSentinel rebuilds validity tags from a flattened buffer. Only an
// exact SentinelPoint is treated as invalid.
func RawCloudFromSentinel(buf []r3.Vector, width, height int) (*RawCloud, error) {
	if len(buf) != width*height {
		return nil, utils.NewShapeError("buffer has %d points, expected %d x %d", len(buf), width, height)
	}
	rc := NewRawCloud(width, height)
	for i, p := range buf {
		if p == SentinelPoint {
			continue
		}
		rc.Points[i] = GridPoint{Position: p, Valid: true}
	}
	return rc, nil
}

// RawCloudFromPoints lays out an all-valid cloud as a single row, which is the
// index space of a cloud that has already been filtered.
func RawCloudFromPoints(points []r3.Vector) *RawCloud {
	rc := NewRawCloud(len(points), 1)
	for i, p := range points {
		rc.Points[i] = GridPoint{Position: p, Valid: true}
	}
	return rc
}
