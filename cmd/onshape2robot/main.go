// Command onshape2robot compiles an Onshape CAD assembly into a URDF or MJCF
// robot description, writing the document and its mesh assets to the current
// directory.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/onshape"
	"github.com/onshape-robotics/toolkit/robot"
)

// Exit codes.
const (
	exitConfig   = 2
	exitUpstream = 3
	exitCompile  = 4
)

func main() {
	app := &cli.App{
		Name:  "onshape2robot",
		Usage: "compile an Onshape assembly into a robot description",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "Onshape document element URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "name",
				Usage:    "name of the robot and of the output file",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "sub-assembly depth to traverse; deeper assemblies become rigid links",
			},
			&cli.BoolFlag{
				Name:  "use-user-defined-root",
				Usage: "use a fixed occurrence as the kinematic root",
			},
			&cli.StringFlag{
				Name:  "type",
				Value: "urdf",
				Usage: "output type, urdf or mjcf",
			},
			&cli.BoolFlag{
				Name:  "download-assets",
				Value: true,
				Usage: "download and transform mesh assets",
			},
			&cli.StringFlag{
				Name:    "access-key",
				EnvVars: []string{"ACCESS_KEY"},
				Usage:   "Onshape API access key",
			},
			&cli.StringFlag{
				Name:    "secret-key",
				EnvVars: []string{"SECRET_KEY"},
				Usage:   "Onshape API secret key",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		// Action errors carry their own exit codes and never reach here;
		// anything left is a usage problem.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfig)
	}
}

func run(c *cli.Context) error {
	logger := logging.NewLogger("onshape2robot")

	accessKey := c.String("access-key")
	secretKey := c.String("secret-key")
	if accessKey == "" || secretKey == "" {
		return cli.Exit("ACCESS_KEY and SECRET_KEY must be set", exitConfig)
	}

	var format robot.Format
	switch c.String("type") {
	case "urdf":
		format = robot.FormatURDF
	case "mjcf", "xml":
		format = robot.FormatMJCF
	default:
		return cli.Exit(fmt.Sprintf("unknown output type %q", c.String("type")), exitConfig)
	}

	document, err := onshape.ParseDocumentURL(c.String("url"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	client := onshape.NewClient(accessKey, secretKey, logger.Sublogger("onshape"),
		onshape.WithBaseURL(document.BaseURL))

	r, err := robot.FromURL(
		c.Context,
		client,
		c.String("name"),
		c.String("url"),
		c.Int("max-depth"),
		c.Bool("use-user-defined-root"),
		format,
		logger,
	)
	if err != nil {
		return cli.Exit(err.Error(), classify(err))
	}

	outPath := c.String("name") + "." + string(format)
	if err := r.Save(c.Context, outPath, c.Bool("download-assets")); err != nil {
		return cli.Exit(err.Error(), classify(err))
	}
	return nil
}

// classify maps an error onto the driver's exit codes.
func classify(err error) int {
	var throttled *onshape.ThrottledError
	var upstream *onshape.UpstreamError
	switch {
	case errors.Is(err, onshape.ErrNotFound),
		errors.Is(err, onshape.ErrUnauthorized),
		errors.As(err, &throttled),
		errors.As(err, &upstream):
		return exitUpstream
	default:
		return exitCompile
	}
}
