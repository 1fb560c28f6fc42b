// Command ufs2arco converts UFS replay NetCDF output into chunked Zarr v2
// archives.
//
// Usage:
//
//	ufs2arco convert --config config.yaml --component FV3Dataset \
//	  --cycle 1994-01-01T00 [--end-cycle 1994-01-10T18] \
//	  [--root s3://noaa-ufs-gefsv13replay-pds/1deg] [--s3-anonymous] \
//	  [--cache] [--cache-dir DIR] [--metrics-addr :8080]
//
//	ufs2arco gen-fixture --out ./testdata --cycle 1994-01-01T00
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/ufs-archive/ufs2arco/internal/adapter/http"
	"github.com/ufs-archive/ufs2arco/internal/config"
	"github.com/ufs-archive/ufs2arco/internal/fsio"
	"github.com/ufs-archive/ufs2arco/internal/netcdf"
	"github.com/ufs-archive/ufs2arco/internal/observability"
	"github.com/ufs-archive/ufs2arco/internal/pipeline"
	"github.com/ufs-archive/ufs2arco/internal/replay"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ufs2arco",
		Short:         "Convert UFS replay NetCDF output into chunked Zarr archives",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newConvertCmd(), newGenFixtureCmd())
	return root
}

// cycleFormats are the accepted --cycle spellings, most specific first.
var cycleFormats = []string{"2006-01-02T15", "2006010215", time.RFC3339}

func parseCycle(s string) (time.Time, error) {
	for _, layout := range cycleFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse cycle %q, want e.g. 1994-01-01T00 or 1994010100", s)
}

// expandCycles lists every cycle from first to last inclusive, stepping by
// every.
func expandCycles(first, last time.Time, every time.Duration) []time.Time {
	var out []time.Time
	for c := first; !c.After(last); c = c.Add(every) {
		out = append(out, c)
	}
	return out
}

func newConvertCmd() *cobra.Command {
	var (
		configPath  string
		component   string
		cycleStr    string
		endCycleStr string
		every       time.Duration
		rootURI     string
		s3Anonymous bool
		cache       bool
		cacheDir    string
		metricsAddr string
		logLevel    string
		logFormat   string
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Archive one or more DA cycles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := observability.NewLogger(logLevel, logFormat)

			first, err := parseCycle(cycleStr)
			if err != nil {
				return err
			}
			last := first
			if endCycleStr != "" {
				if last, err = parseCycle(endCycleStr); err != nil {
					return err
				}
			}
			cycles := expandCycles(first, last, every)
			if len(cycles) == 0 {
				return fmt.Errorf("end cycle %s precedes %s", endCycleStr, cycleStr)
			}

			comp, err := pipeline.ForName(component)
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath, component, comp.Defaults(), logger)
			if err != nil {
				return err
			}

			metrics := observability.NewMetrics()
			fs := fsio.New(fsio.Options{S3Anonymous: s3Anonymous, CacheDir: cacheDir}, logger)
			reader := netcdf.NewReader(replay.Resolver{Root: rootURI}, fs, cache, logger)
			store := pipeline.NewStoreWriter(cfg, fs, logger, metrics)
			archiver := pipeline.New(comp, reader, store, cfg, logger, metrics)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				srv := httpadapter.NewServer(metricsAddr, archiver, logger)
				go func() {
					if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("monitoring server error", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						logger.Error("monitoring server shutdown error", "error", err)
					}
				}()
			}

			return archiver.Run(ctx, cycles)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "YAML configuration file")
	cmd.Flags().StringVar(&component, "component", "FV3Dataset", "model component block to archive")
	cmd.Flags().StringVar(&cycleStr, "cycle", "", "first DA cycle, e.g. 1994-01-01T00 (required)")
	cmd.Flags().StringVar(&endCycleStr, "end-cycle", "", "last DA cycle, inclusive (default: just --cycle)")
	cmd.Flags().DurationVar(&every, "every", 6*time.Hour, "cycle stride")
	cmd.Flags().StringVar(&rootURI, "root", replay.DefaultBucket, "archive root directory or bucket URI")
	cmd.Flags().BoolVar(&s3Anonymous, "s3-anonymous", false, "unsigned S3 access for public buckets")
	cmd.Flags().BoolVar(&cache, "cache", false, "cache fetched source files locally")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "source cache directory (default: OS temp)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /healthz /readyz /metrics on this address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "text or json")
	cobra.CheckErr(cmd.MarkFlagRequired("cycle"))
	return cmd
}

func newGenFixtureCmd() *cobra.Command {
	var (
		out      string
		cycleStr string
		fhrs     []int
		prefixes []string
		levels   int
		ny, nx   int
	)

	cmd := &cobra.Command{
		Use:   "gen-fixture",
		Short: "Write a small synthetic replay file tree for local smoke testing",
		RunE: func(_ *cobra.Command, _ []string) error {
			cycle, err := parseCycle(cycleStr)
			if err != nil {
				return err
			}
			grid := netcdf.FixtureGrid{Levels: levels, NY: ny, NX: nx}
			paths, err := netcdf.WriteFixtureTree(out, cycle, fhrs, prefixes, grid)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "testdata/replay", "root of the generated tree")
	cmd.Flags().StringVar(&cycleStr, "cycle", "1994-01-01T00", "DA cycle of the generated files")
	cmd.Flags().IntSliceVar(&fhrs, "fhr", []int{0, 6}, "forecast hours")
	cmd.Flags().StringSliceVar(&prefixes, "prefix", []string{"bfg_", "sfg_"}, "file prefixes")
	cmd.Flags().IntVar(&levels, "levels", netcdf.DefaultFixtureGrid.Levels, "model levels")
	cmd.Flags().IntVar(&ny, "ny", netcdf.DefaultFixtureGrid.NY, "grid rows")
	cmd.Flags().IntVar(&nx, "nx", netcdf.DefaultFixtureGrid.NX, "grid columns")
	return cmd
}
