package sundaecli

import (
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

var CommonOpts struct {
	Console  bool
	Dry      bool
	Env      string
	Network  string
	LogLevel string
	Port     int
}

var ConsoleFlag = cli.BoolFlag{
	Name:        "console",
	Usage:       "whether to run in console mode or lambda mode",
	Value:       false,
	EnvVars:     []string{"CONSOLE"},
	Destination: &CommonOpts.Console,
}
var DryFlag = cli.BoolFlag{
	Name:        "dry",
	Usage:       "whether to actually persist any records or not",
	Value:       false,
	EnvVars:     []string{"DRY"},
	Destination: &CommonOpts.Dry,
}
var EnvFlag = cli.StringFlag{
	Name:        "env",
	Usage:       "environment",
	Value:       "local",
	EnvVars:     []string{"ENV"},
	Destination: &CommonOpts.Env,
}
var NetworkFlag = cli.StringFlag{
	Name:        "network",
	Usage:       "deployment network; defaults to the value of --env",
	EnvVars:     []string{"NETWORK"},
	Destination: &CommonOpts.Network,
}
var LogLevelFlag = cli.StringFlag{
	Name:        "log-level",
	Usage:       "minimum log level (trace, debug, info, warn, error)",
	Value:       "info",
	EnvVars:     []string{"LOG_LEVEL"},
	Destination: &CommonOpts.LogLevel,
}
var PortFlag = func(p int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "port",
		Usage:       "Port to listen to, if running locally",
		Value:       p,
		EnvVars:     []string{"PORT"},
		Destination: &CommonOpts.Port,
	}
}

var CommonFlags = []cli.Flag{
	&ConsoleFlag,
	&DryFlag,
	&EnvFlag,
	&NetworkFlag,
	&LogLevelFlag,
}

// EnvVar derives the environment variable bound to a flag name,
// e.g. "dax-cluster" becomes "DAX_CLUSTER".
func EnvVar(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// StringFlag builds a string flag bound to dest. The optional value is used
// as the default.
func StringFlag(name, usage string, dest *string, value ...string) *cli.StringFlag {
	flag := &cli.StringFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
	if len(value) > 0 {
		flag.Value = value[0]
	}
	return flag
}

func BoolFlag(name, usage string, dest *bool) *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
}

func IntFlag(name, usage string, dest *int, value int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
}

func DurationFlag(name, usage string, dest *time.Duration, value time.Duration) *cli.DurationFlag {
	return &cli.DurationFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
}
