package pointcloud

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ToPLY writes the cloud as an ascii PLY file with double precision positions and,
// when the cloud has color, uchar red/green/blue properties.
func ToPLY(cloud *PointCloud, out io.Writer) error {
	hasColor := cloud.MetaData().HasColor
	header := fmt.Sprintf("ply\nformat ascii 1.0\nelement vertex %d\n"+
		"property double x\nproperty double y\nproperty double z\n", cloud.Size())
	if hasColor {
		header += "property uchar red\nproperty uchar green\nproperty uchar blue\n"
	}
	header += "end_header\n"
	if _, err := io.WriteString(out, header); err != nil {
		return err
	}
	for i := 0; i < cloud.Size(); i++ {
		p, c := cloud.At(i)
		var err error
		if hasColor {
			_, err = fmt.Fprintf(out, "%v %v %v %d %d %d\n", p.X, p.Y, p.Z, c.R, c.G, c.B)
		} else {
			_, err = fmt.Fprintf(out, "%v %v %v\n", p.X, p.Y, p.Z)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadPLY reads the vertex element of an ascii PLY file. Colors are picked up from
// red/green/blue properties when present.
func ReadPLY(in io.Reader) (cloud *PointCloud, err error) {
	// the parser panics on malformed input
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("error parsing ply: %v", r)
		}
	}()

	ply := goply.New(in)
	vertices := ply.Elements("vertex")
	points := make([]r3.Vector, 0, len(vertices))
	var colors ColorBuffer
	for i, v := range vertices {
		var p r3.Vector
		if p.X, err = plyFloat(v, "x"); err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		if p.Y, err = plyFloat(v, "y"); err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		if p.Z, err = plyFloat(v, "z"); err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		points = append(points, p)

		if _, ok := v["red"]; !ok {
			continue
		}
		if colors == nil {
			colors = make(ColorBuffer, 0, len(vertices))
		}
		c := color.NRGBA{A: 255}
		var r, g, b float64
		if r, err = plyFloat(v, "red"); err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		if g, err = plyFloat(v, "green"); err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		if b, err = plyFloat(v, "blue"); err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		c.R, c.G, c.B = uint8(r), uint8(g), uint8(b)
		colors = append(colors, c)
	}
	return New(points, colors)
}

func plyFloat(v goply.PlyElement, name string) (float64, error) {
	switch x := v.Property(name).(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case nil:
		return 0, errors.Errorf("missing property %q", name)
	default:
		return 0, errors.Errorf("property %q has unsupported type %T", name, x)
	}
}

// WritePLYFile writes the cloud to an ascii PLY file.
func WritePLYFile(cloud *PointCloud, fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPLY(cloud, w); err != nil {
		return err
	}
	return w.Flush()
}

// ReadPLYFile reads an ascii PLY file.
func ReadPLYFile(fn string) (*PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	cloud, err := ReadPLY(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %q", fn)
	}
	return cloud, nil
}
