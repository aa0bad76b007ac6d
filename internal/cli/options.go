// Package cli parses the surrealcache command line.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Commands the surrealcache binary understands.
const (
	CommandStats      = "stats"
	CommandInvalidate = "invalidate"
	CommandClear      = "clear"
	CommandTables     = "tables"
)

var commands = []string{CommandStats, CommandInvalidate, CommandClear, CommandTables}

// ErrUsage marks command line mistakes that are not flag parse errors.
var ErrUsage = errors.New("invalid usage")

type Options struct {
	ConfigPath   string
	Store        string
	Path         string
	StrictConfig bool
	Verbose      bool
	LogFormat    string
	Command      string
	Args         []string
}

func Parse(args []string) (Options, error) {
	var opts Options

	fs := flag.NewFlagSet("surrealcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.ConfigPath, "config", "", "Path to a TOML or YAML configuration file")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to a TOML or YAML configuration file")
	fs.StringVar(&opts.Store, "store", "", "Override storage kind: memory, file or sqlite")
	fs.StringVar(&opts.Path, "path", "", "Override storage path")
	fs.BoolVar(&opts.StrictConfig, "strict-config", false, "Treat configuration warnings as errors")
	fs.StringVar(&opts.LogFormat, "log-format", "text", "Log format: text or json")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("%w\n\n%s", err, Usage(fs))
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return Options{}, fmt.Errorf("%w: missing command\n\n%s", ErrUsage, Usage(fs))
	}
	opts.Command, opts.Args = rest[0], rest[1:]

	switch {
	case !slices.Contains(commands, opts.Command):
		return Options{}, fmt.Errorf("%w: unknown command %q\n\n%s", ErrUsage, opts.Command, Usage(fs))
	case opts.Command == CommandInvalidate && len(opts.Args) == 0:
		return Options{}, fmt.Errorf("%w: invalidate needs at least one table", ErrUsage)
	case opts.Command == CommandTables && len(opts.Args) == 0:
		return Options{}, fmt.Errorf("%w: tables needs a query", ErrUsage)
	}
	return opts, nil
}

func Usage(fs *flag.FlagSet) string {
	if fs == nil {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "Usage of %s:\n", fs.Name())
	fmt.Fprintf(&buf, "  %s [flags] %s\n\n", fs.Name(), strings.Join([]string{
		CommandStats,
		CommandInvalidate + " <table>...",
		CommandClear,
		CommandTables + " <query>",
	}, " | "))
	out := fs.Output()
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(out)
	return buf.String()
}
