// Command buildforge is the thin CLI front end over the engine
// packages: it loads a package graph and a build.forge.hcl phase list,
// reconciles the persisted asset graph against disk, and runs the
// scheduler once. Only `build` is a real, working subcommand; `serve`,
// `test`, and `watch` are named per SPEC_FULL.md's outer-surface
// expansion but intentionally left unimplemented (§6 Non-goals cover
// the watch/serve daemon loop itself, not the CLI surface that would
// eventually front it).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/builder"
	"github.com/buildforge/engine/codegen"
	"github.com/buildforge/engine/config"
	"github.com/buildforge/engine/forgeerr"
	"github.com/buildforge/engine/invalidate"
	"github.com/buildforge/engine/options"
	"github.com/buildforge/engine/phase"
	"github.com/buildforge/engine/rw"
	"github.com/buildforge/engine/scheduler"
)

const graphFileName = "asset_graph.json"

func main() {
	app := &cli.App{
		Name:  "buildforge",
		Usage: "incremental, multi-phase code generation build engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "working-dir", Aliases: []string{"C"}, Value: ".", Usage: "root package directory"},
			&cli.StringFlag{Name: "config", Value: "build.forge.hcl", Usage: "build phase configuration file, relative to working-dir"},
			&cli.StringFlag{Name: "package-graph", Value: "package_graph.yaml", Usage: "package graph file, relative to working-dir"},
			&cli.StringFlag{Name: "cache-dir", Usage: "override the cache_dir declared in the build config"},
			&cli.BoolFlag{Name: "low-resources-mode", Usage: "accepted; the scheduler already runs one action at a time, so this changes nothing"},
			&cli.BoolFlag{Name: "delete-conflicting-outputs", Usage: "accepted and stored; no build step reads it"},
			&cli.StringSliceFlag{Name: "build-filter", Usage: "accepted and stored; the scheduler builds every candidate output regardless"},
			&cli.BoolFlag{Name: "verbose"},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "run every configured phase once and persist the resulting asset graph",
				Action: runBuild,
			},
			{
				Name:   "watch",
				Usage:  "not implemented: re-run affected phases on file changes",
				Action: notImplemented("watch"),
			},
			{
				Name:   "serve",
				Usage:  "not implemented: serve generated outputs over the build daemon protocol",
				Action: notImplemented("serve"),
			},
			{
				Name:   "test",
				Usage:  "not implemented: run package tests against the most recent build",
				Action: notImplemented("test"),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "buildforge:", err)
		os.Exit(1)
	}
}

func notImplemented(name string) cli.ActionFunc {
	return func(c *cli.Context) error {
		return cli.Exit(fmt.Sprintf("buildforge %s is not implemented", name), 1)
	}
}

// registerBuilders is the one place a build config's "builder" keys are
// resolved to concrete phase.Factory values — config stays agnostic of
// the builder package entirely (config/build.go's doc comment).
func registerBuilders() map[string]phase.Factory {
	return map[string]phase.Factory{
		"copy":     builder.NewCopyBuilder,
		"manifest": builder.NewManifestBuilder,
		"combine":  builder.NewCombiningBuilder,
	}
}

func registerActions() map[string]func(phase.Step) error {
	return map[string]func(phase.Step) error{
		"stamp": builder.NewStampAction(codegen.DefaultCommentPrefix),
	}
}

func runBuild(c *cli.Context) error {
	workingDir, err := filepath.Abs(c.String("working-dir"))
	if err != nil {
		return err
	}

	configRel := c.String("config")
	packageGraphRel := c.String("package-graph")

	pgData, err := os.ReadFile(filepath.Join(workingDir, packageGraphRel))
	if err != nil {
		return fmt.Errorf("reading package graph: %w", err)
	}
	pg, err := asset.LoadPackageGraphYAML(pgData)
	if err != nil {
		return err
	}
	for name, pkg := range pg.Packages {
		pkg.RootDir = filepath.Join(workingDir, pkg.RootDir)
		pg.Packages[name] = pkg
	}

	hclData, err := os.ReadFile(filepath.Join(workingDir, configRel))
	if err != nil {
		return fmt.Errorf("reading build config: %w", err)
	}
	bc, err := config.LoadBuildConfig(hclData, configRel)
	if err != nil {
		return err
	}

	phases, err := config.Compile(bc, registerBuilders(), registerActions())
	if err != nil {
		return err
	}

	opts := options.New(workingDir)
	opts.CacheDir = bc.CacheDir
	if override := c.String("cache-dir"); override != "" {
		opts.CacheDir = override
	}
	opts.CacheDir = filepath.Join(workingDir, opts.CacheDir)
	opts.LowResourcesMode = c.Bool("low-resources-mode")
	opts.DeleteConflictingOutputs = c.Bool("delete-conflicting-outputs")
	opts.BuildFilters = c.StringSlice("build-filter")
	opts.Verbose = c.Bool("verbose")
	if opts.Verbose {
		opts.Logger.Logger.SetLevel(logrus.DebugLevel)
	}

	runID := uuid.New().String()
	logger := opts.Logger.WithField("run_id", runID)
	opts.Logger = logger

	reader := &diskReader{packages: pg.Packages}
	scanner := &diskScanner{cacheDir: opts.CacheDir}

	internalIDs := []asset.ID{
		asset.New(pg.Root, configRel),
		asset.New(pg.Root, packageGraphRel),
	}

	graph, err := loadOrBuildGraph(opts.CacheDir, phases, pg, reader, scanner, internalIDs, logger)
	if err != nil {
		return err
	}

	fs := rw.OSFilesystem{}
	readerWriter := rw.New(graph, pg, fs, opts.CacheDir)

	eng := invalidate.New(graph, pg, readerWriter, reader, scanner, logger)
	fullRebuild, err := eng.Reconcile(internalIDs)
	if err != nil {
		return err
	}
	if fullRebuild {
		logger.Info("forcing full rebuild")
		graph, err = freshGraph(phases, pg, reader, scanner, internalIDs)
		if err != nil {
			return err
		}
		readerWriter = rw.New(graph, pg, fs, opts.CacheDir)
	}

	sched := scheduler.New(graph, readerWriter, pg, phases, opts)
	summary, runErr := sched.Run(context.Background())

	if persistErr := persistGraph(opts.CacheDir, graph, fs); persistErr != nil {
		logger.WithError(persistErr).Warn("failed to persist asset graph")
	}

	for _, res := range summary.Results {
		if res.Failed {
			logger.WithField("input", res.Input.String()).WithError(res.Err).Error("build step failed")
		}
	}
	logger.WithField("steps", len(summary.Results)).Info("build finished")

	if runErr != nil {
		return runErr
	}
	if summary.Failed {
		return cli.Exit("build failed", 1)
	}
	return nil
}

// loadOrBuildGraph loads the persisted asset graph if present and still
// at CurrentVersion, falling back to a fresh scan-and-build otherwise —
// the same "no migration, only start over" rule §4.1 states for a
// version mismatch applies equally to a graph that is simply missing.
func loadOrBuildGraph(cacheDir string, phases []phase.Phase, pg *asset.PackageGraph, reader assetgraph.SourceReader, scanner invalidate.Scanner, internalIDs []asset.ID, logger *logrus.Entry) (*assetgraph.Graph, error) {
	path := filepath.Join(cacheDir, graphFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return freshGraph(phases, pg, reader, scanner, internalIDs)
	}

	graph, err := assetgraph.Deserialize(data)
	if err != nil {
		if _, ok := err.(forgeerr.GraphVersionMismatch); ok {
			logger.WithError(err).Info("persisted graph version mismatch")
			return freshGraph(phases, pg, reader, scanner, internalIDs)
		}
		return nil, err
	}
	return graph, nil
}

func freshGraph(phases []phase.Phase, pg *asset.PackageGraph, reader assetgraph.SourceReader, scanner invalidate.Scanner, internalIDs []asset.ID) (*assetgraph.Graph, error) {
	var sources []asset.ID
	for _, name := range pg.Names() {
		discovered, err := scanner.Sources(pg.Packages[name])
		if err != nil {
			return nil, err
		}
		sources = append(sources, discovered...)
	}
	return assetgraph.Build(phases, sources, internalIDs, pg, reader)
}

func persistGraph(cacheDir string, graph *assetgraph.Graph, fs rw.Filesystem) error {
	data, err := graph.Serialize()
	if err != nil {
		return err
	}
	return fs.WriteFile(filepath.Join(cacheDir, graphFileName), data)
}
