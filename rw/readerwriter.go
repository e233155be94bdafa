// Package rw implements the virtual filesystem from §4.3: it reads from
// sources or the generated cache, stages writes until a step commits,
// and enforces the visibility rules between phases and packages.
package rw

import (
	"path/filepath"
	"strconv"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/forgeerr"
)

// ReaderWriter is the capability BuildStep reads and writes through. It
// holds no per-step state itself (that lives in buildstep's memoized
// canRead cache, §4.3) — only the graph, package topology, filesystem,
// and the overlay of writes not yet committed to disk.
type ReaderWriter struct {
	Graph    *assetgraph.Graph
	Packages *asset.PackageGraph
	FS       Filesystem
	CacheDir string

	overlay map[asset.ID][]byte
}

// New builds a ReaderWriter over an existing graph and package topology.
func New(graph *assetgraph.Graph, packages *asset.PackageGraph, fs Filesystem, cacheDir string) *ReaderWriter {
	return &ReaderWriter{Graph: graph, Packages: packages, FS: fs, CacheDir: cacheDir, overlay: map[asset.ID][]byte{}}
}

// PathFor computes the on-disk path for id. Non-hidden assets (sources,
// internal inputs, and non-hidden generated outputs) live under their
// owning package's root — "build to source," preserved for source-tree
// determinism (§4.5). Hidden generated outputs live under a
// per-package, per-phase subtree of CacheDir so they never collide with
// a real source path.
func (rw *ReaderWriter) PathFor(id asset.ID, phase int, hidden bool) string {
	pkg, ok := rw.Packages.Packages[id.Package]
	root := ""
	if ok {
		root = pkg.RootDir
	}
	if !hidden {
		return filepath.Join(root, id.Path)
	}
	return filepath.Join(rw.CacheDir, id.Package, strconv.Itoa(phase), id.Path)
}

// visibility computes whether id is visible to a read issued by
// requestingPkg at requestingPhase, per §4.3's four bullet rules, and
// returns a reason string for diagnostics when it is not.
func (rw *ReaderWriter) visibility(id asset.ID, requestingPkg string, requestingPhase int) (bool, string) {
	if isEngineOwned(id, rw.CacheDir) {
		return false, "the engine's own cache tree is never readable by builders"
	}

	node, ok := rw.Graph.Get(id)
	if !ok {
		return true, "" // not found yet is reported as AssetNotFound/negative canRead, not a visibility failure
	}

	if !rw.Packages.Visible(id, requestingPkg) {
		return false, "asset is private to its owning package"
	}

	switch node.Kind {
	case assetgraph.KindSource, assetgraph.KindInternal, assetgraph.KindMissingSource, assetgraph.KindPlaceholder:
		return true, ""
	case assetgraph.KindGenerated:
		q := node.Generated.Phase
		if q >= requestingPhase {
			return false, "asset is produced by a phase that has not run yet relative to this read"
		}
		// visibility is only ever consulted for an explicit read (Read,
		// Exists) — a hidden earlier-phase output is always visible here,
		// by id, to whichever step asks for it by name. The "not visible
		// in a glob from a later phase" half of §4.3's hidden-output rule
		// (S5) is enforced at the glob-matching call sites instead
		// (buildstep.Step.matchGlob, invalidate.Engine.matchGlobNow),
		// which never consider a hidden generated node a candidate match
		// regardless of what visibility reports.
		return true, ""
	case assetgraph.KindGlob, assetgraph.KindPostProcessAnchor:
		return true, ""
	default:
		return true, ""
	}
}

// Read returns the bytes of id as visible to requestingPkg/requestingPhase,
// preferring any staged (uncommitted) write over what's on disk, so that
// a step's own in-progress writes are visible to its own later reads
// (§4.3, "read-your-writes within a step").
func (rw *ReaderWriter) Read(id asset.ID, requestingPkg string, requestingPhase int) ([]byte, error) {
	visible, reason := rw.visibility(id, requestingPkg, requestingPhase)
	if !visible {
		return nil, forgeerr.InvalidInput{Requester: requestingPkg, Asset: id.String(), Reason: reason}
	}

	if data, ok := rw.overlay[id]; ok {
		return append([]byte(nil), data...), nil
	}

	node, ok := rw.Graph.Get(id)
	hidden := ok && node.Kind == assetgraph.KindGenerated && node.Generated.IsHidden
	phaseOf := requestingPhase - 1
	if ok && node.Kind == assetgraph.KindGenerated {
		phaseOf = node.Generated.Phase
		if node.Generated.Result == false && node.Kind == assetgraph.KindGenerated {
			return nil, forgeerr.AssetNotFound{Asset: id.String()}
		}
	}

	path := rw.PathFor(id, phaseOf, hidden)
	if !rw.FS.Exists(path) {
		return nil, forgeerr.AssetNotFound{Asset: id.String()}
	}
	return rw.FS.ReadFile(path)
}

// Exists reports whether id can be read. A visibility failure is
// reported as false, the same answer as a missing asset, rather than as
// an error, matching §4.4's canRead which never raises.
func (rw *ReaderWriter) Exists(id asset.ID, requestingPkg string, requestingPhase int) bool {
	visible, _ := rw.visibility(id, requestingPkg, requestingPhase)
	if !visible {
		return false
	}
	if _, ok := rw.overlay[id]; ok {
		return true
	}
	node, ok := rw.Graph.Get(id)
	if !ok {
		return false
	}
	if node.Kind == assetgraph.KindMissingSource {
		return false
	}
	hidden := node.Kind == assetgraph.KindGenerated && node.Generated.IsHidden
	phaseOf := requestingPhase - 1
	if node.Kind == assetgraph.KindGenerated {
		if !node.Generated.Result {
			return false
		}
		phaseOf = node.Generated.Phase
	}
	return rw.FS.Exists(rw.PathFor(id, phaseOf, hidden))
}

// StageWrite records bytes for id without touching disk. AllowedOutputs
// validation happens one layer up, in buildstep, which is where the
// step's declared output set is known.
func (rw *ReaderWriter) StageWrite(id asset.ID, data []byte) {
	rw.overlay[id] = append([]byte(nil), data...)
}

// Staged returns the staged bytes for id, if any were written this step.
func (rw *ReaderWriter) Staged(id asset.ID) ([]byte, bool) {
	data, ok := rw.overlay[id]
	return data, ok
}

// Commit flushes id's staged bytes to disk (if non-hidden, to the
// source-tree path; if hidden, to the cache subtree) and returns its
// content digest. It is only called after a step has fully succeeded.
func (rw *ReaderWriter) Commit(id asset.ID, phase int, hidden bool) (asset.Digest, error) {
	data, ok := rw.overlay[id]
	if !ok {
		return asset.Digest{}, forgeerr.AssetNotFound{Asset: id.String()}
	}
	path := rw.PathFor(id, phase, hidden)
	if err := rw.FS.WriteFile(path, data); err != nil {
		return asset.Digest{}, err
	}
	delete(rw.overlay, id)
	return asset.Compute(id, data), nil
}

// Discard drops id's staged write without touching disk — used when a
// step fails, so the filesystem is left untouched (§5, §9).
func (rw *ReaderWriter) Discard(id asset.ID) {
	delete(rw.overlay, id)
}

// RemoveFromDisk deletes id's committed output from disk. Nothing in
// this module calls it: neither the InvalidationEngine nor the scheduler
// deletes outputs.
func (rw *ReaderWriter) RemoveFromDisk(id asset.ID, phase int, hidden bool) error {
	return rw.FS.Remove(rw.PathFor(id, phase, hidden))
}

// isEngineOwned reports whether id's logical path points directly into
// the engine's own cache tree — a builder has no legitimate reason to
// address it that way; hidden outputs are always addressed by their
// normal logical AssetId, never by their cache-relative disk path.
func isEngineOwned(id asset.ID, cacheDir string) bool {
	if cacheDir == "" {
		return false
	}
	prefix := cacheDir + "/"
	return len(id.Path) >= len(prefix) && id.Path[:len(prefix)] == prefix
}
