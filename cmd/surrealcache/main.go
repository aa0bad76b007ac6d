// Package main implements the surrealcache CLI, which inspects and
// invalidates a durable result cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/electwix/surrealcache/internal/cache"
	"github.com/electwix/surrealcache/internal/cli"
	"github.com/electwix/surrealcache/internal/config"
	"github.com/electwix/surrealcache/internal/logging"
	"github.com/electwix/surrealcache/internal/surql"
)

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stdout, err.Error())
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	format, err := logging.ParseFormat(opts.LogFormat)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	logger := logging.NewSlogAdapter(logging.New(logging.Options{
		Verbose: opts.Verbose,
		Writer:  stderr,
		Format:  format,
	}))

	if opts.Command == cli.CommandTables {
		printTables(stdout, strings.Join(opts.Args, " "))
		return 0
	}

	res, err := config.Load(opts.ConfigPath, config.LoadOptions{Strict: opts.StrictConfig})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	for _, warning := range res.Warnings {
		logger.Warn(warning)
	}

	plan := res.Plan
	if opts.Store != "" {
		plan.Storage.Kind = config.StorageKind(opts.Store)
	}
	if opts.Path != "" {
		plan.Storage.Path = opts.Path
	}
	plan.Storage, err = config.NormalizeStorage(plan.Storage)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if plan.Storage.Kind == config.StorageMemory {
		logger.Warn("memory storage starts empty in every process; use -store file or -store sqlite")
	}

	storage, closer, err := config.OpenStorage(plan.Storage, cache.WithStorageLogger(logger))
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 2
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("close storage", "error", err)
		}
	}()

	engine := cache.New(storage, plan.Policy, cache.WithLogger(logger))
	logger.Debug("opened cache", "preset", plan.Preset, "store", plan.Storage.Kind, "path", plan.Storage.Path)

	switch opts.Command {
	case cli.CommandStats:
		printStats(stdout, plan.Storage, engine.Stats(ctx))
	case cli.CommandInvalidate:
		for _, table := range opts.Args {
			before := engine.Stats(ctx).TotalEntries
			engine.Invalidate(ctx, table)
			removed := before - engine.Stats(ctx).TotalEntries
			_, _ = fmt.Fprintf(stdout, "%s: removed %s entries\n", table, humanize.Comma(int64(removed)))
		}
	case cli.CommandClear:
		before := engine.Stats(ctx).TotalEntries
		engine.InvalidateAll(ctx)
		_, _ = fmt.Fprintf(stdout, "removed %s entries\n", humanize.Comma(int64(before)))
	}
	return 0
}

func printTables(w io.Writer, query string) {
	for _, table := range surql.ExtractTables(query) {
		_, _ = fmt.Fprintln(w, table)
	}
}

func printStats(w io.Writer, sc config.StorageConfig, stats cache.Stats) {
	store := string(sc.Kind)
	if sc.Path != "" {
		store += " " + sc.Path
		if size, ok := diskUsage(sc.Path); ok {
			store += " (" + humanize.Bytes(size) + ")"
		}
	}

	tables := "none"
	if len(stats.Tables) > 0 {
		tables = strings.Join(stats.Tables, ", ")
	}

	_, _ = fmt.Fprintf(w, "store:    %s\n", store)
	_, _ = fmt.Fprintf(w, "entries:  %s\n", humanize.Comma(int64(stats.TotalEntries)))
	_, _ = fmt.Fprintf(w, "expired:  %s\n", humanize.Comma(int64(stats.ExpiredEntries)))
	_, _ = fmt.Fprintf(w, "tables:   %s\n", tables)
	if stats.OldestEntry != nil && stats.NewestEntry != nil {
		_, _ = fmt.Fprintf(w, "oldest:   %s\n", humanize.Time(*stats.OldestEntry))
		_, _ = fmt.Fprintf(w, "newest:   %s\n", humanize.Time(*stats.NewestEntry))
	}
}

// diskUsage sums the sizes of the files under path, which may itself be a
// file.
func diskUsage(path string) (uint64, bool) {
	var total uint64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err == nil
}
