// Package invalidate implements the InvalidationEngine from §4.6: it
// reconciles the persisted graph against the current state of disk
// before a build starts, marking the nodes affected by a change dirty.
// The scheduler does not consult the dirty set: it runs every candidate
// action on each build, whether or not the node is dirty.
//
// It runs in four passes:
//  1. Check the engine-owned internal inputs (build config, package
//     graph) for a change that forces a full rebuild (§4.1 — there is
//     no migration path for these, only "start over"); if one changed,
//     the remaining passes are skipped.
//  2. Reconcile discovered sources against the graph's source nodes
//     (new, changed, deleted, reappeared).
//  3. Re-run every memoized glob against the now-reconciled source set,
//     marking a glob (and everything that read it) dirty if its result
//     changed.
//  4. Verify every generated node the graph believes exists on disk
//     still does — an output deleted out-of-band is marked dirty.
package invalidate

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/rw"
)

// Scanner discovers the current set of source assets for a package —
// implemented by the caller (typically walking disk against the
// package's configured InputSet), so this package stays agnostic of
// how sources are enumerated.
type Scanner interface {
	Sources(pkg asset.Package) ([]asset.ID, error)
}

// Engine reconciles a loaded Graph against current disk state.
type Engine struct {
	Graph    *assetgraph.Graph
	Packages *asset.PackageGraph
	RW       *rw.ReaderWriter
	Reader   assetgraph.SourceReader
	Scanner  Scanner
	Logger   *logrus.Entry
}

// New builds an Engine. logger may be nil, in which case a discarding
// entry is used.
func New(graph *assetgraph.Graph, packages *asset.PackageGraph, readerWriter *rw.ReaderWriter, reader assetgraph.SourceReader, scanner Scanner, logger *logrus.Entry) *Engine {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &Engine{Graph: graph, Packages: packages, RW: readerWriter, Reader: reader, Scanner: scanner, Logger: logger}
}

// Reconcile runs all four passes. If fullRebuild is true, the caller
// must discard the persisted graph entirely and re-run
// assetgraph.Build from scratch rather than trusting anything returned
// here (§4.1: graph-version and internal-input mismatches have no
// migration path).
func (e *Engine) Reconcile(internalInputs []asset.ID) (fullRebuild bool, err error) {
	if fullRebuild, err = e.checkInternalInputs(internalInputs); err != nil || fullRebuild {
		return fullRebuild, err
	}

	if err := e.reconcileSources(); err != nil {
		return false, err
	}

	e.recheckGlobs()
	e.verifyOutputsOnDisk()

	return false, nil
}

// checkInternalInputs compares the digest of each engine-owned input
// (build.forge.hcl, package_graph.yaml, builder-binary identity) to
// what the graph last recorded. Any mismatch forces a full rebuild —
// these are structural changes to the build itself, not ordinary
// source edits, so targeted invalidation is not attempted (§4.1, §4.6).
func (e *Engine) checkInternalInputs(ids []asset.ID) (bool, error) {
	for _, id := range ids {
		node, ok := e.Graph.Get(id)
		if !ok || node.Kind != assetgraph.KindInternal {
			return true, nil
		}
		content, err := e.Reader.ReadFile(id)
		if err != nil {
			return true, nil
		}
		if asset.Compute(id, content) != node.Internal.Digest {
			e.Logger.WithField("asset", id.String()).Info("internal input changed, forcing full rebuild")
			return true, nil
		}
	}
	return false, nil
}

// reconcileSources discovers the current source set per package and
// reconciles it against the graph: new files are added, changed files
// propagate dirtiness through their recorded primary outputs, and
// files no longer present become missingSource tombstones.
func (e *Engine) reconcileSources() error {
	for _, name := range e.Packages.Names() {
		pkg := e.Packages.Packages[name]
		discovered, err := e.Scanner.Sources(pkg)
		if err != nil {
			return err
		}

		seen := make(map[asset.ID]struct{}, len(discovered))
		for _, id := range discovered {
			seen[id] = struct{}{}
			content, rerr := e.Reader.ReadFile(id)
			if rerr != nil {
				continue
			}
			digest := asset.Compute(id, content)

			if !e.Graph.Contains(id) {
				e.Graph.Add(assetgraph.NewSource(id, digest))
				continue
			}
			e.Graph.ReconcileSource(id, &digest)
		}

		for _, n := range e.Graph.All() {
			if n.ID.Package != name {
				continue
			}
			if n.Kind != assetgraph.KindSource {
				continue
			}
			if _, ok := seen[n.ID]; !ok {
				e.Graph.ReconcileSource(n.ID, nil)
			}
		}
	}
	return nil
}

// recheckGlobs re-runs every memoized glob node's pattern against the
// now-reconciled source/generated set. A glob whose result set changed
// — a matching file appeared or disappeared since it was last resolved
// — is marked dirty so every step that recorded it as an input reruns
// (§4.1's glob-node invalidation case).
func (e *Engine) recheckGlobs() {
	for _, n := range e.Graph.All() {
		if n.Kind != assetgraph.KindGlob {
			continue
		}
		current := e.matchGlobNow(n.Glob.Pattern, n.Glob.Package, n.Glob.Phase)
		if !sameIDs(current, n.Glob.Results) {
			n.Glob.Results = current
			e.Graph.MarkDirty(n.ID)
		}
	}
}

func (e *Engine) matchGlobNow(pattern, pkg string, phase int) []asset.ID {
	var out []asset.ID
	for _, n := range e.Graph.All() {
		if n.ID.Package != pkg {
			continue
		}
		visible := false
		switch n.Kind {
		case assetgraph.KindSource:
			visible = true
		case assetgraph.KindGenerated:
			visible = n.Generated.Phase < phase && n.Generated.Result && n.Generated.WasOutput && !n.Generated.IsHidden
		}
		if !visible {
			continue
		}
		if ok, _ := matchGlobPattern(pattern, n.ID.Path); ok {
			out = append(out, n.ID)
		}
	}
	return out
}

func sameIDs(a, b []asset.ID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[asset.ID]struct{}{}
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}

// verifyOutputsOnDisk catches outputs deleted out of band (by the user,
// by a cleaned build directory) since the last persisted run: a
// generated node recorded as WasOutput=true that is no longer present
// on disk is marked dirty so the scheduler reproduces it (§8 property
// 7, "deleting a declared output and rebuilding reproduces it").
func (e *Engine) verifyOutputsOnDisk() {
	for _, n := range e.Graph.All() {
		if n.Kind != assetgraph.KindGenerated || !n.Generated.WasOutput {
			continue
		}
		path := e.RW.PathFor(n.ID, n.Generated.Phase, n.Generated.IsHidden)
		if !e.RW.FS.Exists(path) {
			e.Graph.MarkDirty(n.ID)
		}
	}
}
