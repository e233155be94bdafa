// Package config loads the two on-disk configuration formats from §6:
// build.forge.hcl (the ordered phase list for one package graph) via
// hashicorp/hcl/v2, and package_graph.yaml (asset.LoadPackageGraphYAML,
// already implemented in the asset package). It keeps no knowledge of
// any concrete Builder — Compile resolves each declared phase's builder
// key against a registry the caller supplies, so this package never
// needs to import the builder implementations themselves.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/buildforge/engine/forgeerr"
	"github.com/buildforge/engine/phase"
)

// BuildConfig is the parsed, not-yet-compiled shape of build.forge.hcl.
type BuildConfig struct {
	CacheDir    string
	Phases      []PhaseDecl
	PostProcess []PostProcessDecl
}

// PhaseDecl is one `phase "name" { ... }` block.
type PhaseDecl struct {
	Name            string
	Builder         string
	TargetPackages  []string
	ExcludePackages []string
	GenerateFor     []string
	ExcludeFor      []string
	Extensions      map[string][]string
	Optional        bool
	HideOutput      bool
	WholePackage    bool
	Options         map[string]any
}

// PostProcessDecl is one `postprocess "name" { ... }` block.
type PostProcessDecl struct {
	Name        string
	AppliesTo   []string
	ExcludeFrom []string
}

// hclFile is the raw gohcl decode target.
type hclFile struct {
	CacheDir    string           `hcl:"cache_dir,optional"`
	Phases      []hclPhaseBlock  `hcl:"phase,block"`
	PostProcess []hclPostProcess `hcl:"postprocess,block"`
}

type hclPhaseBlock struct {
	Name            string     `hcl:",label"`
	Builder         string     `hcl:"builder"`
	TargetPackages  []string   `hcl:"target_packages,optional"`
	ExcludePackages []string   `hcl:"exclude_packages,optional"`
	GenerateFor     []string   `hcl:"generate_for,optional"`
	ExcludeFor      []string   `hcl:"exclude_for,optional"`
	Extensions      cty.Value  `hcl:"extensions,optional"`
	Optional        bool       `hcl:"optional,optional"`
	HideOutput      bool       `hcl:"hide_output,optional"`
	WholePackage    bool       `hcl:"whole_package,optional"`
	Options         cty.Value  `hcl:"options,optional"`
}

type hclPostProcess struct {
	Name        string   `hcl:",label"`
	AppliesTo   []string `hcl:"applies_to"`
	ExcludeFrom []string `hcl:"exclude_from,optional"`
}

// LoadBuildConfig parses build.forge.hcl content into a BuildConfig.
func LoadBuildConfig(data []byte, filename string) (*BuildConfig, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, forgeerr.ArgumentError{Reason: fmt.Sprintf("parsing %s: %s", filename, diags.Error())}
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(f.Body, nil, &raw); diags.HasErrors() {
		return nil, forgeerr.ArgumentError{Reason: fmt.Sprintf("decoding %s: %s", filename, diags.Error())}
	}

	bc := &BuildConfig{CacheDir: raw.CacheDir}
	if bc.CacheDir == "" {
		bc.CacheDir = ".forge/build"
	}

	for _, p := range raw.Phases {
		extensions, err := ctyToExtensionMap(p.Extensions)
		if err != nil {
			return nil, forgeerr.ArgumentError{Reason: fmt.Sprintf("phase %q: %s", p.Name, err)}
		}
		opts, err := ctyToOptionsMap(p.Options)
		if err != nil {
			return nil, forgeerr.ArgumentError{Reason: fmt.Sprintf("phase %q: %s", p.Name, err)}
		}
		bc.Phases = append(bc.Phases, PhaseDecl{
			Name:            p.Name,
			Builder:         p.Builder,
			TargetPackages:  p.TargetPackages,
			ExcludePackages: p.ExcludePackages,
			GenerateFor:     p.GenerateFor,
			ExcludeFor:      p.ExcludeFor,
			Extensions:      extensions,
			Optional:        p.Optional,
			HideOutput:      p.HideOutput,
			WholePackage:    p.WholePackage,
			Options:         opts,
		})
	}

	for _, pp := range raw.PostProcess {
		bc.PostProcess = append(bc.PostProcess, PostProcessDecl{
			Name:        pp.Name,
			AppliesTo:   pp.AppliesTo,
			ExcludeFrom: pp.ExcludeFrom,
		})
	}

	return bc, nil
}

// ctyToExtensionMap decodes an `extensions = { ".txt" = [".txt.copy"] }`
// attribute into the same map[string][]string ExtensionMap wraps.
func ctyToExtensionMap(v cty.Value) (map[string][]string, error) {
	out := map[string][]string{}
	if v.IsNull() || !v.IsKnown() {
		return out, nil
	}
	it := v.ElementIterator()
	for it.Next() {
		k, val := it.Element()
		var templates []string
		valIt := val.ElementIterator()
		for valIt.Next() {
			_, s := valIt.Element()
			templates = append(templates, s.AsString())
		}
		out[k.AsString()] = templates
	}
	return out, nil
}

// ctyToOptionsMap converts an arbitrary `options = { ... }` attribute
// into a plain map[string]any via a JSON round trip — the same
// json-as-intermediary technique the teacher uses to go the other way
// (Go value -> cty.Value) in config_as_cty.go's convertToCtyWithJson,
// applied in reverse since gohcl hands us the cty.Value form directly.
func ctyToOptionsMap(v cty.Value) (map[string]any, error) {
	if v.IsNull() || !v.IsKnown() {
		return map[string]any{}, nil
	}
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("converting options: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("converting options: %w", err)
	}
	return out, nil
}

// Compile resolves every PhaseDecl's builder key against builders, and
// every PostProcessDecl's name against actions, and returns the
// ordered, validated phase.Phase list phase.Compile expects. HCL has no
// way to express a Go closure, so the action bodies themselves are
// always supplied from Go — the config file only declares which
// builder/action applies and which sources it covers.
func Compile(bc *BuildConfig, builders map[string]phase.Factory, actions map[string]func(phase.Step) error) ([]phase.Phase, error) {
	var phases []phase.Phase
	for _, p := range bc.Phases {
		factory, ok := builders[p.Builder]
		if !ok {
			return nil, forgeerr.CannotBuild{Reason: fmt.Sprintf("no builder registered for key %q (phase %q)", p.Builder, p.Name)}
		}
		phases = append(phases, phase.In(phase.InBuildPhase{
			BuilderKey:          p.Name,
			Factory:             factory,
			TargetPackageFilter: phase.PackageFilter{Include: p.TargetPackages, Exclude: p.ExcludePackages},
			GenerateFor:         phase.InputSet{Include: p.GenerateFor, Exclude: p.ExcludeFor},
			IsOptional:          p.Optional,
			HideOutput:          p.HideOutput,
			Extensions:          p.Extensions,
			Options:             p.Options,
			WholePackage:        p.WholePackage,
		}))
	}

	if len(bc.PostProcess) > 0 {
		var decls []phase.PostProcessAction
		for _, pp := range bc.PostProcess {
			run, ok := actions[pp.Name]
			if !ok {
				return nil, forgeerr.CannotBuild{Reason: fmt.Sprintf("no post-process action registered for %q", pp.Name)}
			}
			decls = append(decls, phase.PostProcessAction{
				Key:       pp.Name,
				AppliesTo: phase.InputSet{Include: pp.AppliesTo, Exclude: pp.ExcludeFrom},
				Run:       run,
			})
		}
		phases = append(phases, phase.Post(phase.PostBuildPhase{Actions: decls}))
	}

	return phase.Compile(phases)
}
