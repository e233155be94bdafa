// Package forgeerr defines the distinct error kinds from §7 of the
// engine design: which ones abort the whole build (CannotBuild,
// ArgumentError, and engine-invariant violations) and which ones are
// reported to the offending step without failing the build by themselves
// (InvalidInput, AssetNotFound, BuilderFailure, ConcurrentModification).
package forgeerr

import "fmt"

// CannotBuild is a setup-time failure: a builder factory threw or a phase
// configuration is invalid. Fatal; aborts before any step runs.
type CannotBuild struct {
	Reason string
}

func (e CannotBuild) Error() string {
	return "cannot build: " + e.Reason
}

// ArgumentError is a static-validation failure, e.g. builder extensions
// whose declared outputs form a cycle back to an input extension, either
// within one builder or through other builders (§4.2). Fatal.
type ArgumentError struct {
	Reason string
}

func (e ArgumentError) Error() string {
	return "invalid build configuration: " + e.Reason
}

// InvalidInput is raised when a step reads an asset outside its allowed
// visibility (private asset in another package, later-phase output,
// engine-owned tree). Reported to the step; does not fail the build by
// itself.
type InvalidInput struct {
	Requester string // package making the read
	Asset     string // identity string of the asset
	Reason    string
}

func (e InvalidInput) Error() string {
	return fmt.Sprintf("%s cannot read %s: %s", e.Requester, e.Asset, e.Reason)
}

// AssetNotFound is raised by an explicit read (readAsBytes/readAsString)
// of a non-existent asset, as opposed to canRead which answers false
// instead of raising.
type AssetNotFound struct {
	Asset string
}

func (e AssetNotFound) Error() string {
	return "asset not found: " + e.Asset
}

// BuilderFailure wraps a panic/error raised by builder code itself. The
// step that produced it is marked failed; its transitive generated
// descendants inherit the failure (§4.4).
type BuilderFailure struct {
	Builder string
	Input   string
	Cause   error
}

func (e BuilderFailure) Error() string {
	return fmt.Sprintf("builder %s failed on %s: %v", e.Builder, e.Input, e.Cause)
}

func (e BuilderFailure) Unwrap() error {
	return e.Cause
}

// ConcurrentModification is raised when a source file changes mid-build.
// The build completes with the snapshot it had; the next build's
// InvalidationEngine re-invalidates.
type ConcurrentModification struct {
	Asset string
}

func (e ConcurrentModification) Error() string {
	return "source changed during build: " + e.Asset
}

// CycleError reports a fatal non-self cycle among generated nodes
// (§4.5): a → b → a across builders/phases.
type CycleError struct {
	Path []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("cycle detected among builder outputs: %v", e.Path)
}

// GraphVersionMismatch signals that a persisted asset graph was written
// by a different graph version and must be discarded (§4.1).
type GraphVersionMismatch struct {
	Stored, Current int
}

func (e GraphVersionMismatch) Error() string {
	return fmt.Sprintf("asset graph version %d does not match current version %d, forcing full rebuild", e.Stored, e.Current)
}
