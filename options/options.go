// Package options carries the ambient, per-build configuration that
// would otherwise be threaded as global state: the logger, the working
// directory, and the scheduling knobs from §5 and §6 (low-resources mode,
// build filters, build dirs, delete-conflicting-outputs). It is passed
// explicitly to every component that needs it, the same way the teacher
// threads *options.TerragruntOptions through config parsing and code
// generation instead of reaching for package-level state.
package options

import (
	"github.com/sirupsen/logrus"
)

// BuildFilter is one --build-filter pattern (§5, §6): an output path
// glob that scopes which non-optional outputs must be produced.
type BuildFilter = string

// Options is the ambient configuration for one build invocation.
type Options struct {
	// Logger is the structured logger every component logs through.
	// Never nil; New populates a sane default.
	Logger *logrus.Entry

	// WorkingDir is the root package's directory; the process must be
	// run from here per §6's Environment clause.
	WorkingDir string

	// CacheDir is the engine-owned tree under which hidden outputs and
	// the persisted asset graph live (the `.dart_tool`-equivalent
	// directory from §5/§6), relative to WorkingDir.
	CacheDir string

	// DeleteConflictingOutputs records the --delete-conflicting-outputs
	// flag (§8 scenario S3). No component reads it: pre-existing files
	// at declared output paths are handled the same whether it is set
	// or not.
	DeleteConflictingOutputs bool

	// LowResourcesMode records the --low-resources-mode flag (§5). The
	// scheduler already runs at most one action of a phase at a time,
	// so setting it does not change the schedule or the outputs.
	LowResourcesMode bool

	// BuildFilters holds the --build-filter patterns (§4.5
	// BuildFilters). MatchesBuildFilter tests a path against them, but
	// the scheduler does not call it: every candidate output is built
	// whatever the filters say.
	BuildFilters []BuildFilter

	// BuildDirs holds build directories (§4.5 BuildDirs). No component
	// reads it: inputs are taken from the whole package graph.
	BuildDirs []string

	// Verbose raises the logger to debug level when true.
	Verbose bool
}

// New returns Options with a default logrus logger and CacheDir, ready
// for field overrides.
func New(workingDir string) *Options {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	return &Options{
		Logger:     logrus.NewEntry(logger),
		WorkingDir: workingDir,
		CacheDir:   ".forge/build",
	}
}

// WithLogger returns a shallow copy of o with Logger replaced, the same
// pattern the teacher uses to scope a logger to one sub-operation
// (e.g. copyLockFile(sourceFolder, destinationFolder, logger)).
func (o *Options) WithLogger(logger *logrus.Entry) *Options {
	clone := *o
	clone.Logger = logger
	return &clone
}

// MatchesBuildFilter reports whether outputPath matches any configured
// BuildFilter, or true if no filters are configured (§4.5: "only outputs
// matching a filter... are built" — with no filters, everything matches).
func (o *Options) MatchesBuildFilter(outputPath string) bool {
	if len(o.BuildFilters) == 0 {
		return true
	}
	for _, f := range o.BuildFilters {
		if matched, _ := matchFilter(f, outputPath); matched {
			return true
		}
	}
	return false
}
