package phase

import "strings"

// ExtensionMap is a builder's buildExtensions contract (§4.2): a mapping
// from an input extension pattern to a list of output extension
// templates. A pattern may carry a "{{}}" capture placeholder, or a "^"
// prefix meaning "root-relative" (the pattern must match the whole path,
// not just a trailing extension).
type ExtensionMap map[string][]string

// Match finds a pattern in m that matches path and returns the output
// paths it implies. Patterns are tried in map iteration order, so when
// more than one pattern matches, which one wins is not defined. Output
// templates are expanded by substituting any "{{}}" capture with the
// portion of path preceding the matched suffix.
func (m ExtensionMap) Match(path string) (outputs []string, matched bool) {
	for pattern, templates := range m {
		anchored := strings.HasPrefix(pattern, "^")
		pat := strings.TrimPrefix(pattern, "^")
		hasCapture := strings.Contains(pat, "{{}}")
		suffix := strings.TrimPrefix(pat, "{{}}")

		if anchored {
			if path != pat {
				continue
			}
		} else if !strings.HasSuffix(path, suffix) {
			continue
		}

		prefix := strings.TrimSuffix(path, suffix)
		outs := make([]string, len(templates))
		for i, tmpl := range templates {
			if hasCapture {
				outs[i] = strings.Replace(tmpl, "{{}}", prefix, 1)
			} else {
				outs[i] = prefix + tmpl
			}
		}
		return outs, true
	}
	return nil, false
}

// ReverseMatch inverts one (pattern, template) pair of an ExtensionMap:
// given an output path the template could have produced, it reconstructs
// the primary input path that would have produced it. This is what lets
// the scheduler's on-demand escalation (§4.5) find "the specific
// (primaryInput, q) action" to run when a later phase reads an asset an
// earlier phase hasn't produced yet.
func ReverseMatch(pattern, template, outputPath string) (inputPath string, ok bool) {
	outSuffix := outputSuffix(template)
	if !strings.HasSuffix(outputPath, outSuffix) {
		return "", false
	}
	prefix := strings.TrimSuffix(outputPath, outSuffix)

	if strings.HasPrefix(pattern, "^") {
		// Anchored (root-relative) patterns identify a single fixed
		// path rather than a per-prefix family; the prefix captured
		// above is not reapplied.
		return strings.TrimPrefix(pattern, "^"), true
	}
	return prefix + inputSuffix(pattern), true
}

// inputSuffix returns the static suffix a pattern matches against,
// stripped of its "^" anchor and "{{}}" capture marker — the vertex
// identity used for the builder-extension overlap graph.
func inputSuffix(pattern string) string {
	pat := strings.TrimPrefix(pattern, "^")
	return strings.TrimPrefix(pat, "{{}}")
}

// outputSuffix returns the static suffix a template contributes, for
// the same purpose.
func outputSuffix(template string) string {
	return strings.TrimPrefix(template, "{{}}")
}
