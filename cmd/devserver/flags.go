package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// defaultConfigPath is used when neither --config nor DEVSERVER_CONFIG is set.
const defaultConfigPath = "configs/devserver.yaml"

// errUsage marks a command line that could not be parsed.
var errUsage = errors.New("usage error")

// options holds the parsed command line.
type options struct {
	workerName string
	port       int
	portSet    bool
	debug      bool
	configPath string

	// configExplicit is true when the path came from --config or
	// DEVSERVER_CONFIG, in which case the file must exist.
	configExplicit bool
}

// parseArgs parses `devserver <workerName> [--port P] [--debug] [--config path]`.
// Flags may appear before or after the worker name.
//
// Returns:
//   - options: Parsed options
//   - error: flag.ErrHelp for -h, or errUsage wrapping the problem
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("devserver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: devserver <workerName> [--port P] [--debug] [--config path]")
		fmt.Fprintln(fs.Output(), "\nServes one device to many clients over TCP.")
		fmt.Fprintln(fs.Output(), "\nFlags:")
		fs.PrintDefaults()
	}

	fs.IntVar(&opts.port, "port", 0, "TCP port to listen on (default from config, 12345)")
	fs.IntVar(&opts.port, "p", 0, "shorthand for --port")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&opts.debug, "d", false, "shorthand for --debug")
	fs.StringVar(&opts.configPath, "config", "", "config file path (env DEVSERVER_CONFIG)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, err
		}
		return opts, fmt.Errorf("%w: %w", errUsage, err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return opts, fmt.Errorf("%w: worker name is required", errUsage)
	}
	opts.workerName = rest[0]

	// Flags after the worker name.
	if err := fs.Parse(rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, err
		}
		return opts, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port", "p":
			opts.portSet = true
		case "config":
			opts.configExplicit = true
		}
	})

	if !opts.configExplicit {
		if path := os.Getenv("DEVSERVER_CONFIG"); path != "" {
			opts.configPath = path
			opts.configExplicit = true
		} else {
			opts.configPath = defaultConfigPath
		}
	}

	return opts, nil
}
