package pointcloud

import (
	"context"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"go.viam.com/test"

	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/spatialmath"
	"go.viam.com/depthcloud/utils"
)

// clusteredCloud is five small tetrahedral clusters placed asymmetrically around
// the origin, far enough apart that moderate motions never confuse clusters.
func clusteredCloud(t *testing.T) *PointCloud {
	t.Helper()
	centers := []r3.Vector{
		{X: 1, Y: 0, Z: 0},
		{X: -0.5, Y: 0.9, Z: 0},
		{X: -0.5, Y: -0.8, Z: 0.1},
		{X: 0, Y: 0, Z: 1.1},
		{X: 0.1, Y: 0.1, Z: -1},
	}
	offsets := []r3.Vector{
		{X: 0.08, Y: 0.08, Z: 0.08},
		{X: 0.08, Y: -0.08, Z: -0.08},
		{X: -0.08, Y: 0.08, Z: -0.08},
		{X: -0.08, Y: -0.08, Z: 0.08},
	}
	var pts []r3.Vector
	var colors ColorBuffer
	for ci, c := range centers {
		for _, o := range offsets {
			pts = append(pts, c.Add(o))
			colors = append(colors, color.NRGBA{R: uint8(50 * ci), A: 255})
		}
	}
	cloud, err := New(pts, colors)
	test.That(t, err, test.ShouldBeNil)
	return cloud
}

func transformCloud(t *testing.T, cloud *PointCloud, rt *spatialmath.RigidTransform) *PointCloud {
	t.Helper()
	moved, err := New(rt.TransformAll(cloud.Points()), cloud.Colors())
	test.That(t, err, test.ShouldBeNil)
	return moved
}

func newTestRegistrar(t *testing.T) *ICPRegistrar {
	t.Helper()
	icp, err := NewICPRegistrar(100, 1e-12, 2.0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return icp
}

func TestICPSelfAlignment(t *testing.T) {
	cloud := clusteredCloud(t)
	icp := newTestRegistrar(t)

	res, err := icp.Align(context.Background(), cloud, cloud)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeTrue)
	test.That(t, res.FinalState, test.ShouldEqual, ICPStateConverged)
	test.That(t, res.IterationsUsed, test.ShouldEqual, 1)
	test.That(t, res.FinalMeanError, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, res.Transform.ApproxEqual(spatialmath.NewIdentityTransform(), 1e-9, 1e-9), test.ShouldBeTrue)
	test.That(t, res.NonConvergence(), test.ShouldBeNil)
	test.That(t, len(res.History), test.ShouldEqual, 1)
	test.That(t, res.History[0].Correspondences, test.ShouldEqual, cloud.Size())
}

func TestICPRecoversKnownTransform(t *testing.T) {
	source := clusteredCloud(t)
	rot := (&spatialmath.R4AA{Theta: 15 * math.Pi / 180, RX: 0.3, RY: -0.5, RZ: 0.8}).RotationMatrix()
	known := spatialmath.NewRigidTransform(rot, r3.Vector{X: 0.1, Y: -0.05, Z: 0.08})
	target := transformCloud(t, source, known)

	for _, builder := range []IndexBuilder{NewBruteForceIndex, NewKDTreeIndex} {
		icp := newTestRegistrar(t)
		icp.NewIndex = builder

		res, err := icp.Align(context.Background(), source, target)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Converged, test.ShouldBeTrue)
		test.That(t, res.Transform.ApproxEqual(known, 1e-6, 1e-6), test.ShouldBeTrue)
		test.That(t, res.Transform.Rotation().IsOrthonormal(1e-9), test.ShouldBeTrue)
		test.That(t, res.FinalMeanError, test.ShouldBeLessThan, 1e-10)

		// merged is transformed source then target, colors alongside
		test.That(t, res.Merged.Size(), test.ShouldEqual, source.Size()+target.Size())
		for i := 0; i < source.Size(); i++ {
			p, c := res.Merged.At(i)
			test.That(t, p.Sub(target.Points()[i]).Norm(), test.ShouldBeLessThan, 1e-6)
			test.That(t, c, test.ShouldResemble, source.Colors()[i])
		}
		for i := 0; i < target.Size(); i++ {
			p, c := res.Merged.At(source.Size() + i)
			test.That(t, p, test.ShouldResemble, target.Points()[i])
			test.That(t, c, test.ShouldResemble, target.Colors()[i])
		}
	}

	// inputs are not modified
	test.That(t, source.Points(), test.ShouldResemble, clusteredCloud(t).Points())
}

func TestICPOutlierRejection(t *testing.T) {
	base := clusteredCloud(t)
	junk := []r3.Vector{{X: 50, Y: 50, Z: 50}, {X: -60, Y: 40, Z: 70}, {X: 80, Y: -50, Z: 55}}
	source, err := New(append(append([]r3.Vector{}, base.Points()...), junk...), nil)
	test.That(t, err, test.ShouldBeNil)

	shift := r3.Vector{X: 0.05, Y: 0.02, Z: -0.03}
	target := transformCloud(t, base, spatialmath.NewTranslation(shift))

	icp := newTestRegistrar(t)
	icp.OutlierDistance = 1.0
	res, err := icp.Align(context.Background(), source, target)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeTrue)
	test.That(t, res.History[0].Correspondences, test.ShouldEqual, base.Size())
	test.That(t, res.Transform.ApproxEqual(spatialmath.NewTranslation(shift), 1e-6, 1e-6), test.ShouldBeTrue)
}

func TestICPInsufficientCorrespondences(t *testing.T) {
	target := clusteredCloud(t)
	source := transformCloud(t, target, spatialmath.NewTranslation(r3.Vector{X: 100}))

	icp := newTestRegistrar(t)
	icp.OutlierDistance = 0.5
	_, err := icp.Align(context.Background(), source, target)
	test.That(t, errors.Is(err, utils.ErrInsufficientCorrespondences), test.ShouldBeTrue)

	two, err := New([]r3.Vector{{X: 1}, {Y: 1}}, nil)
	test.That(t, err, test.ShouldBeNil)
	_, err = icp.Align(context.Background(), two, two)
	test.That(t, errors.Is(err, utils.ErrInsufficientCorrespondences), test.ShouldBeTrue)
}

func TestICPInvalidInput(t *testing.T) {
	cloud := clusteredCloud(t)
	icp := newTestRegistrar(t)

	_, err := icp.Align(context.Background(), NewEmpty(), cloud)
	test.That(t, errors.Is(err, utils.ErrInvalidInput), test.ShouldBeTrue)
	_, err = icp.Align(context.Background(), cloud, NewEmpty())
	test.That(t, errors.Is(err, utils.ErrInvalidInput), test.ShouldBeTrue)
	_, err = icp.Align(context.Background(), nil, cloud)
	test.That(t, errors.Is(err, utils.ErrInvalidInput), test.ShouldBeTrue)

	_, err = NewICPRegistrar(0, 1e-9, 1, nil)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)
	_, err = NewICPRegistrar(10, -1, 1, nil)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)
	_, err = NewICPRegistrar(10, 1e-9, 0, nil)
	test.That(t, errors.Is(err, utils.ErrConfig), test.ShouldBeTrue)
}

func TestICPCanceled(t *testing.T) {
	cloud := clusteredCloud(t)
	icp := newTestRegistrar(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := icp.Align(ctx, cloud, cloud)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestICPNonConvergence(t *testing.T) {
	source := clusteredCloud(t)
	rot := (&spatialmath.R4AA{Theta: 0.2, RZ: 1}).RotationMatrix()
	target := transformCloud(t, source, spatialmath.NewRigidTransform(rot, r3.Vector{Y: 0.05}))

	logger, logs := logging.NewObservedTestLogger(t)
	icp, err := NewICPRegistrar(1, 0, 2.0, logger)
	test.That(t, err, test.ShouldBeNil)

	res, err := icp.Align(context.Background(), source, target)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeFalse)
	test.That(t, res.FinalState, test.ShouldEqual, ICPStateIterationLimitReached)
	test.That(t, res.IterationsUsed, test.ShouldEqual, 1)
	test.That(t, res.Transform, test.ShouldNotBeNil)
	test.That(t, res.Merged.Size(), test.ShouldEqual, 2*source.Size())
	test.That(t, errors.Is(res.NonConvergence(), utils.ErrNonConvergence), test.ShouldBeTrue)
	test.That(t, logs.FilterLevelExact(zapcore.WarnLevel).Len(), test.ShouldEqual, 1)
}

func TestEstimateRigidTransformAvoidsReflection(t *testing.T) {
	src := clusteredCloud(t).Points()
	// mirror through the xy plane; the best proper rotation is not the mirror
	dst := make([]r3.Vector, len(src))
	pairs := make([]Correspondence, len(src))
	for i, p := range src {
		dst[i] = r3.Vector{X: p.X, Y: p.Y, Z: -p.Z}
		pairs[i] = Correspondence{Source: i, Target: i}
	}
	rt, err := estimateRigidTransform(src, dst, pairs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rt.Rotation().Det(), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, rt.Rotation().IsOrthonormal(1e-9), test.ShouldBeTrue)
}

func TestICPStateString(t *testing.T) {
	test.That(t, ICPStateConverged.String(), test.ShouldEqual, "converged")
	test.That(t, ICPStateIterationLimitReached.String(), test.ShouldEqual, "iteration_limit_reached")
	test.That(t, ICPState(99).String(), test.ShouldEqual, "unknown")
}

// settledIndex answers like a brute force index until a query lands on a target
// point, then pairs it with the next target point instead.
type settledIndex struct {
	points []r3.Vector
	exact  NearestNeighborIndex
}

func (s *settledIndex) Nearest(q r3.Vector) (int, float64) {
	i, d := s.exact.Nearest(q)
	if d < 1e-6 {
		return (i + 1) % len(s.points), 0
	}
	return i, d
}

func (s *settledIndex) Len() int {
	return len(s.points)
}

func TestICPKeepsPoseWhenErrorRises(t *testing.T) {
	target, err := New([]r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 10, Y: 0, Z: 0},
		{X: 0, Y: 10, Z: 0},
		{X: 0, Y: 0, Z: 10},
		{X: 10, Y: 10, Z: 0},
		{X: 10, Y: 0, Z: 10},
		{X: 0, Y: 10, Z: 10},
		{X: 10, Y: 10, Z: 10},
	}, nil)
	test.That(t, err, test.ShouldBeNil)
	shift := r3.Vector{X: 0.5, Y: -0.25, Z: 0.1}
	source := transformCloud(t, target, spatialmath.NewTranslation(shift.Mul(-1)))

	icp, err := NewICPRegistrar(10, 0, 1.0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	icp.NewIndex = func(points []r3.Vector) NearestNeighborIndex {
		return &settledIndex{points: points, exact: NewBruteForceIndex(points)}
	}

	res, err := icp.Align(context.Background(), source, target)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeTrue)
	test.That(t, res.IterationsUsed, test.ShouldEqual, 1)
	test.That(t, res.FinalMeanError, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, res.Transform.ApproxEqual(spatialmath.NewTranslation(shift), 1e-9, 1e-9), test.ShouldBeTrue)
	for i, p := range res.Merged.Points()[:source.Size()] {
		test.That(t, p.Sub(target.Points()[i]).Norm(), test.ShouldBeLessThan, 1e-9)
	}
}
