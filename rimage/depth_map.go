// Package rimage holds the depth grid read from a depth sensor and the single
// orientation correction that maps stored sensor data into the camera frame.
package rimage

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/depthcloud/utils"
)

// DepthGrid is a height x width grid of depth samples stored row-major. Depth
// units match the focal length units of the intrinsics used to unproject it.
type DepthGrid struct {
	width  int
	height int

	data []float64
}

// NewDepthGrid wraps row-major data. The data is not copied.
func NewDepthGrid(width, height int, data []float64) (*DepthGrid, error) {
	if width <= 0 || height <= 0 {
		return nil, utils.NewShapeError("bad width or height for depth grid %d x %d", width, height)
	}
	if len(data) != width*height {
		return nil, utils.NewShapeError("depth grid declared %d x %d but has %d samples", width, height, len(data))
	}
	return &DepthGrid{width: width, height: height, data: data}, nil
}

// NewDepthGridFromRows copies a rectangular [row][col] array and checks it against
// the declared width and height.
func NewDepthGridFromRows(rows [][]float64, width, height int) (*DepthGrid, error) {
	if len(rows) != height {
		return nil, utils.NewShapeError("depth grid declared height %d but has %d rows", height, len(rows))
	}
	data := make([]float64, 0, width*height)
	for r, row := range rows {
		if len(row) != width {
			return nil, utils.NewShapeError("depth grid declared width %d but row %d has %d samples", width, r, len(row))
		}
		data = append(data, row...)
	}
	return NewDepthGrid(width, height, data)
}

// Width returns the number of columns.
func (g *DepthGrid) Width() int {
	return g.width
}

// Height returns the number of rows.
func (g *DepthGrid) Height() int {
	return g.height
}

// At returns the sample at (row, col).
func (g *DepthGrid) At(row, col int) float64 {
	return g.data[row*g.width+col]
}

// Data returns the row-major samples. Callers must not modify it.
func (g *DepthGrid) Data() []float64 {
	return g.data
}

// MinMax returns the smallest and largest samples.
func (g *DepthGrid) MinMax() (float64, float64) {
	return floats.Min(g.data), floats.Max(g.data)
}

// Invert returns a new grid with every sample d replaced by max-d, where max is
// the largest sample in this grid. Some sensors report depth with this polarity.
func (g *DepthGrid) Invert() *DepthGrid {
	_, max := g.MinMax()
	out := make([]float64, len(g.data))
	for i, d := range g.data {
		out[i] = max - d
	}
	return &DepthGrid{width: g.width, height: g.height, data: out}
}

// ToPrettyPicture renders the grid as a hue ramp between hardMin and hardMax.
// Samples outside the open interval are left black.
func (g *DepthGrid) ToPrettyPicture(hardMin, hardMax float64) image.Image {
	min, max := g.MinMax()
	if min < hardMin {
		min = hardMin
	}
	if max > hardMax {
		max = hardMax
	}

	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	span := max - min
	for row := 0; row < g.height; row++ {
		for col := 0; col < g.width; col++ {
			z := g.At(row, col)
			if z <= hardMin || z >= hardMax {
				continue
			}
			ratio := 0.
			if span > 0 {
				ratio = (z - min) / span
			}
			hue := 30 + (200.0 * ratio)
			img.Set(col, row, colorful.Hsv(hue, 1.0, 1.0))
		}
	}
	return img
}
