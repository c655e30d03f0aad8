package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

// Exit codes.
const (
	exitError       = 1
	exitGatesFailed = 2
	exitConfig      = 3
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "connascence",
		Usage:   "Connascence detection and code quality analysis",
		Version: version,
		Description: `connascence finds coupling (connascence) between code sites, checks
NASA-style safety rules, detects duplicated algorithms and evaluates quality
gates over the result.

Supports: Python, JavaScript, TypeScript, TSX, Go`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"CONNASCENCE_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Commands: []*cli.Command{
			analyzeCmd(),
			watchCmd(),
			initCmd(),
			historyCmd(),
		},
		// Exit codes are handled in main so the app stays testable.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(exitError)
	}
}

// exitf returns an error that makes main exit with code.
func exitf(code int, format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), code)
}
