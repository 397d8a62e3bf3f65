package pointcloud

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/spatialmath"
	"go.viam.com/depthcloud/utils"
)

// minCorrespondences is the fewest point pairs that determine a rigid transform.
const minCorrespondences = 3

// Default registration parameters.
const (
	DefaultMaxIterations      = 50
	DefaultConvergenceEpsilon = 1e-9
	DefaultOutlierDistance    = 0.05
)

// ICPState is a step of the registration loop.
type ICPState int

// The registration moves Init -> (Searching -> Estimating)* -> Converged or
// IterationLimitReached -> Done.
const (
	ICPStateInit ICPState = iota
	ICPStateSearching
	ICPStateEstimating
	ICPStateConverged
	ICPStateIterationLimitReached
	ICPStateDone
)

func (s ICPState) String() string {
	switch s {
	case ICPStateInit:
		return "init"
	case ICPStateSearching:
		return "searching"
	case ICPStateEstimating:
		return "estimating"
	case ICPStateConverged:
		return "converged"
	case ICPStateIterationLimitReached:
		return "iteration_limit_reached"
	case ICPStateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Correspondence pairs a source point with its nearest target point.
type Correspondence struct {
	Source   int
	Target   int
	Distance float64
}

// IterationStats summarizes one registration iteration.
type IterationStats struct {
	Iteration        int
	Correspondences  int
	MeanSquaredError float64
	MedianDistance   float64
}

// AlignmentResult is the outcome of registering a source cloud onto a target.
type AlignmentResult struct {
	// Transform maps source points into the target frame.
	Transform *spatialmath.RigidTransform
	// Merged is the transformed source followed by the target.
	Merged         *PointCloud
	IterationsUsed int
	FinalMeanError float64
	Converged      bool
	FinalState     ICPState
	History        []IterationStats
}

// NonConvergence returns a diagnostic wrapping utils.ErrNonConvergence when the
// iteration budget ran out, and nil otherwise. The result is still usable.
func (r *AlignmentResult) NonConvergence() error {
	if r.Converged {
		return nil
	}
	return utils.NewNonConvergenceError(r.IterationsUsed, r.FinalMeanError)
}

// ICPRegistrar aligns a source cloud onto a target cloud with point-to-point
// iterative closest point.
type ICPRegistrar struct {
	MaxIterations      int
	ConvergenceEpsilon float64
	// OutlierDistance discards pairs farther apart than this.
	OutlierDistance float64
	// NewIndex builds the nearest neighbor index over the target. Defaults to DefaultIndexBuilder.
	NewIndex IndexBuilder
	Logger   logging.Logger
}

// NewICPRegistrar returns a validated registrar.
func NewICPRegistrar(maxIterations int, convergenceEpsilon, outlierDistance float64, logger logging.Logger) (*ICPRegistrar, error) {
	icp := &ICPRegistrar{
		MaxIterations:      maxIterations,
		ConvergenceEpsilon: convergenceEpsilon,
		OutlierDistance:    outlierDistance,
		NewIndex:           DefaultIndexBuilder,
		Logger:             logger,
	}
	if err := icp.Validate(); err != nil {
		return nil, err
	}
	return icp, nil
}

// Validate checks the registration parameters.
func (icp *ICPRegistrar) Validate() error {
	if icp.MaxIterations < 1 {
		return utils.NewConfigError("max iterations must be at least 1, got %d", icp.MaxIterations)
	}
	if icp.ConvergenceEpsilon < 0 || math.IsNaN(icp.ConvergenceEpsilon) {
		return utils.NewConfigError("convergence epsilon must be non-negative, got %v", icp.ConvergenceEpsilon)
	}
	if !(icp.OutlierDistance > 0) {
		return utils.NewConfigError("outlier distance must be positive, got %v", icp.OutlierDistance)
	}
	return nil
}

// Align estimates the rigid transform taking source onto target. Neither cloud is
// modified. Running out of iterations is not an error; check Converged or
// NonConvergence on the result. A step that would raise the mean squared error
// is discarded and ends the loop at the previous pose. The context is checked
// between iterations.
func (icp *ICPRegistrar) Align(ctx context.Context, source, target *PointCloud) (*AlignmentResult, error) {
	logger := logging.OrBlank(icp.Logger)
	if err := icp.Validate(); err != nil {
		return nil, err
	}
	if source.Size() == 0 {
		return nil, utils.NewInvalidInputError("source cloud is empty")
	}
	if target.Size() == 0 {
		return nil, utils.NewInvalidInputError("target cloud is empty")
	}

	newIndex := icp.NewIndex
	if newIndex == nil {
		newIndex = DefaultIndexBuilder
	}
	index := newIndex(target.Points())

	working := make([]r3.Vector, source.Size())
	copy(working, source.Points())
	targetPoints := target.Points()

	cumulative := spatialmath.NewIdentityTransform()
	history := make([]IterationStats, 0, icp.MaxIterations)
	prevError := math.Inf(1)
	curError := math.Inf(1)
	state := ICPStateInit

	for iteration := 1; iteration <= icp.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state = ICPStateSearching
		pairs, err := icp.correspond(ctx, index, working)
		if err != nil {
			return nil, err
		}
		if len(pairs) < minCorrespondences {
			return nil, utils.NewInsufficientCorrespondencesError(iteration, len(pairs), minCorrespondences)
		}

		state = ICPStateEstimating
		step, err := estimateRigidTransform(working, targetPoints, pairs)
		if err != nil {
			return nil, errors.Wrapf(err, "iteration %d", iteration)
		}
		next := step.TransformAll(working)
		dists := make([]float64, len(pairs))
		var sumSq float64
		for i, c := range pairs {
			d := next[c.Source].Sub(targetPoints[c.Target]).Norm()
			dists[i] = d
			sumSq += d * d
		}
		stepError := sumSq / float64(len(pairs))
		if stepError > prevError {
			// keep the previous pose; the error can only rise from here
			logger.Debugw("icp step rejected", "iteration", iteration, "mse", stepError, "previous", prevError)
			state = ICPStateConverged
			break
		}
		working = next
		cumulative = cumulative.Compose(step)
		curError = stepError
		median, err := stats.Median(dists)
		if err != nil {
			return nil, errors.Wrap(err, "error computing median residual")
		}
		history = append(history, IterationStats{
			Iteration:        iteration,
			Correspondences:  len(pairs),
			MeanSquaredError: curError,
			MedianDistance:   median,
		})
		logger.Debugw("icp iteration", "iteration", iteration, "pairs", len(pairs), "mse", curError, "median", median)

		// an error already under epsilon cannot drop by epsilon again
		if prevError-curError < icp.ConvergenceEpsilon || curError < icp.ConvergenceEpsilon {
			state = ICPStateConverged
			break
		}
		prevError = curError
	}
	if state != ICPStateConverged {
		state = ICPStateIterationLimitReached
	}

	transformedSource, err := New(working, source.Colors())
	if err != nil {
		return nil, err
	}
	result := &AlignmentResult{
		Transform:      cumulative,
		Merged:         transformedSource.Concat(target),
		IterationsUsed: len(history),
		FinalMeanError: curError,
		Converged:      state == ICPStateConverged,
		FinalState:     state,
		History:        history,
	}
	if err := result.NonConvergence(); err != nil {
		logger.Warnw("registration returned best effort result", "error", err)
	}
	logger.Debugw("icp finished", "state", state, "then", ICPStateDone, "transform", cumulative.String())
	return result, nil
}

// correspond finds the nearest target for every working point in parallel and
// keeps the pairs within the outlier distance, in source order.
func (icp *ICPRegistrar) correspond(ctx context.Context, index NearestNeighborIndex, working []r3.Vector) ([]Correspondence, error) {
	found := make([]Correspondence, len(working))
	if err := utils.ParallelForEach(ctx, len(working), func(i int) {
		j, d := index.Nearest(working[i])
		found[i] = Correspondence{Source: i, Target: j, Distance: d}
	}); err != nil {
		return nil, err
	}

	kept := found[:0]
	for _, c := range found {
		if c.Target < 0 || c.Distance > icp.OutlierDistance {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// estimateRigidTransform finds the proper rotation and translation minimizing the
// squared distance between paired points, via the SVD of their cross-covariance.
func estimateRigidTransform(src, dst []r3.Vector, pairs []Correspondence) (*spatialmath.RigidTransform, error) {
	var srcCentroid, dstCentroid r3.Vector
	for _, c := range pairs {
		srcCentroid = srcCentroid.Add(src[c.Source])
		dstCentroid = dstCentroid.Add(dst[c.Target])
	}
	n := float64(len(pairs))
	srcCentroid = srcCentroid.Mul(1 / n)
	dstCentroid = dstCentroid.Mul(1 / n)

	var cov [9]float64
	for _, c := range pairs {
		s := src[c.Source].Sub(srcCentroid)
		t := dst[c.Target].Sub(dstCentroid)
		sv := [3]float64{s.X, s.Y, s.Z}
		tv := [3]float64{t.X, t.Y, t.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				cov[i*3+j] += sv[i] * tv[j]
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(3, 3, cov[:]), mat.SVDFull); !ok {
		return nil, errors.New("cross-covariance factorization failed")
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		// singular values are sorted, so the last column of V is the weakest axis
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}

	rotation := spatialmath.RotationMatrixFromDense(&r)
	translation := dstCentroid.Sub(rotation.Mul(srcCentroid))
	return spatialmath.NewRigidTransform(rotation, translation), nil
}
