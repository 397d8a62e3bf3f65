package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"go.viam.com/depthcloud/pointcloud"
)

// PlotConvergence draws the mean squared error of every registration against its
// iteration number and saves the chart; the format follows the file extension.
// Alignment i is labeled as frame i+1.
func PlotConvergence(alignments []*pointcloud.AlignmentResult, path string) error {
	if len(alignments) == 0 {
		return errors.New("no registrations to plot")
	}
	p := plot.New()
	p.Title.Text = "ICP convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "mean squared error"

	lines := make([]interface{}, 0, 2*len(alignments))
	for i, a := range alignments {
		xys := make(plotter.XYs, len(a.History))
		for j, h := range a.History {
			xys[j].X = float64(h.Iteration)
			xys[j].Y = h.MeanSquaredError
		}
		lines = append(lines, fmt.Sprintf("frame %d", i+1), xys)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "error building convergence plot")
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
