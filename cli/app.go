// Package cli contains the depthcloud command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/depthcloud/config"
)

const (
	// Flags.
	generalFlagDebug  = "debug"
	generalFlagConfig = "config"
	generalFlagOut    = "out"
	generalFlagPlot   = "plot"

	captureFlagData          = "data"
	captureFlagImages        = "images"
	captureFlagCameraProfile = "camera-profile"
	captureFlagColorFolder   = "color-folder"
	captureFlagDepthFolder   = "depth-folder"
	captureFlagShowDepth     = "show-depth"
	captureFlagDepth         = "depth"
	captureFlagColor         = "color"

	depthFlagMin    = "min-depth"
	depthFlagMax    = "max-depth"
	depthFlagStride = "stride"
	depthFlagInvert = "invert-depth"

	icpFlagMaxIterations      = "max-iterations"
	icpFlagConvergenceEpsilon = "convergence-epsilon"
	icpFlagOutlierDistance    = "outlier-distance"
	icpFlagVoxelSize          = "voxel-size"
)

func configFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    generalFlagConfig,
		Aliases: []string{"c"},
		Usage:   "load settings from `FILE`; flags override it",
	}
}

func outFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     generalFlagOut,
		Aliases:  []string{"o"},
		Usage:    "write the resulting cloud to `FILE`, as PLY when it ends in .ply and PCD otherwise",
		Required: true,
	}
}

func plotFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  generalFlagPlot,
		Usage: "save a chart of registration error per iteration to `FILE`",
	}
}

func cameraProfileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  captureFlagCameraProfile,
		Usage: "capture device profile, one of " + joinProfiles(),
	}
}

func depthFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  depthFlagMin,
			Usage: "discard depth at or below this value",
			Value: config.DefaultMinDepth,
		},
		&cli.Float64Flag{
			Name:  depthFlagMax,
			Usage: "discard depth at or above this value",
			Value: config.DefaultMaxDepth,
		},
		&cli.IntFlag{
			Name:  depthFlagStride,
			Usage: "keep every Nth row and column",
			Value: config.DefaultStride,
		},
		&cli.BoolFlag{
			Name:  depthFlagInvert,
			Usage: "flip depth polarity; defaults to the camera profile's setting",
		},
	}
}

func icpFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  icpFlagMaxIterations,
			Usage: "registration iteration budget",
		},
		&cli.Float64Flag{
			Name:  icpFlagConvergenceEpsilon,
			Usage: "stop once the mean squared error improves by less than this",
		},
		&cli.Float64Flag{
			Name:  icpFlagOutlierDistance,
			Usage: "ignore point pairs farther apart than this",
		},
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

// NewApp returns a new app with the depthcloud commands, Writer set to out, and
// ErrWriter set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "depthcloud",
		Usage:           "reconstruct point clouds from captured depth maps",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "reconstruct",
				Usage: "unproject every captured frame, register them onto the first, and merge",
				Flags: flags(
					[]cli.Flag{
						&cli.StringFlag{
							Name:     captureFlagData,
							Usage:    "root `DIR` of the captures",
							Required: true,
						},
						&cli.StringFlag{
							Name:     captureFlagImages,
							Usage:    "capture set `NAME` under the data dir",
							Required: true,
						},
						cameraProfileFlag(),
						configFileFlag(),
						&cli.StringFlag{
							Name:  captureFlagColorFolder,
							Usage: "color image folder inside the capture set",
							Value: config.DefaultColorFolder,
						},
						&cli.StringFlag{
							Name:  captureFlagDepthFolder,
							Usage: "depth record folder inside the capture set",
							Value: config.DefaultDepthFolder,
						},
						&cli.Float64Flag{
							Name:  icpFlagVoxelSize,
							Usage: "voxel downsample the merged cloud; 0 disables",
						},
						&cli.BoolFlag{
							Name:  captureFlagShowDepth,
							Usage: "also write a false color preview of every depth frame next to the output",
						},
						plotFlag(),
						outFlag(),
					},
					depthFlags(),
					icpFlags(),
				),
				Action: ReconstructAction,
			},
			{
				Name:  "unproject",
				Usage: "turn one depth record, and optionally its color image, into a filtered cloud",
				Flags: flags(
					[]cli.Flag{
						&cli.StringFlag{
							Name:     captureFlagDepth,
							Usage:    "depth record `FILE`",
							Required: true,
						},
						&cli.StringFlag{
							Name:  captureFlagColor,
							Usage: "color image `FILE` captured with the depth record",
						},
						cameraProfileFlag(),
						configFileFlag(),
						&cli.BoolFlag{
							Name:  captureFlagShowDepth,
							Usage: "also write a false color preview of the depth next to the output",
						},
						outFlag(),
					},
					depthFlags(),
				),
				Action: UnprojectAction,
			},
			{
				Name:      "register",
				Usage:     "align a source cloud onto a target cloud and write both merged",
				ArgsUsage: "<source.pcd|.ply> <target.pcd|.ply>",
				Flags: flags(
					[]cli.Flag{configFileFlag(), plotFlag(), outFlag()},
					icpFlags(),
				),
				Action: RegisterAction,
			},
		},
	}
}
