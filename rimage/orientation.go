package rimage

import (
	"go.viam.com/depthcloud/utils"
)

// OrientSensorGrid converts depth data as stored by the capture device into the
// camera frame used for unprojection: the stored array is transposed and then
// mirrored along the column axis. This is the only place that convention lives;
// the matching intrinsics transpose is done when the camera matrix is read.
//
// A stored array with R rows and C columns becomes a grid of width R and height C,
// and the stored sample raw[i][j] lands at (row=j, col=R-1-i).
func OrientSensorGrid(raw [][]float64) (*DepthGrid, error) {
	rawRows := len(raw)
	if rawRows == 0 {
		return nil, utils.NewShapeError("depth data has no rows")
	}
	rawCols := len(raw[0])
	if rawCols == 0 {
		return nil, utils.NewShapeError("depth data has no columns")
	}
	for i, row := range raw {
		if len(row) != rawCols {
			return nil, utils.NewShapeError("depth data row %d has %d samples, expected %d", i, len(row), rawCols)
		}
	}

	width, height := rawRows, rawCols
	data := make([]float64, width*height)
	for i, row := range raw {
		for j, d := range row {
			r, c := OrientedIndex(rawRows, i, j)
			data[r*width+c] = d
		}
	}
	return &DepthGrid{width: width, height: height, data: data}, nil
}

// OrientedIndex returns where the stored sample (i, j) of an array with rawRows
// rows ends up after OrientSensorGrid.
func OrientedIndex(rawRows, i, j int) (row, col int) {
	return j, rawRows - 1 - i
}

// OrientSensorGridWithSize is OrientSensorGrid followed by a check that the
// oriented grid matches the declared width and height.
func OrientSensorGridWithSize(raw [][]float64, width, height int) (*DepthGrid, error) {
	grid, err := OrientSensorGrid(raw)
	if err != nil {
		return nil, err
	}
	if grid.Width() != width || grid.Height() != height {
		return nil, utils.NewShapeError("depth grid declared %d x %d but data orients to %d x %d",
			width, height, grid.Width(), grid.Height())
	}
	return grid, nil
}
