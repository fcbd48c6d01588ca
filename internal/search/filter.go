// Package search implements the hybrid search orchestrator (§4.7) and its
// supporting Filter Builder (§4.1).
package search

import (
	"regexp"
	"strings"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

// MaxFilterLength is the maximum length of the produced predicate (§4.1).
const MaxFilterLength = 500

// filterUnsafe collapses every character outside [A-Za-z0-9_%-] to '_'
// before interpolation (§4.1's sanitization rule).
var filterUnsafe = regexp.MustCompile(`[^A-Za-z0-9_%-]`)

// filterWhitelist is the post-sanitization validation whitelist (§4.1).
var filterWhitelist = regexp.MustCompile(`^[A-Za-z0-9_\-%]+$`)

// bareExtensionPattern recognizes a glob that is just "*.ext" (§4.1 step 2).
var bareExtensionPattern = regexp.MustCompile(`^\*\.([a-z]+)$`)

// Filter is the sanitized predicate string ready for interpolation into
// the store's query dialect, per §4.1's "produce a single predicate
// string... or 'no filter'". Because every interpolated token has already
// been collapsed to the whitelist [A-Za-z0-9_%-] — which contains no quote
// or escape characters — string-literal interpolation of that token
// cannot break out of its quotes; this is what makes the collapse-and-
// whitelist approach "closed against novel injection vectors" per §4.1's
// rationale, and lets the predicate be asserted against directly in tests
// (§8 scenario c) rather than hidden behind driver-specific placeholders.
type Filter struct {
	Predicate string
}

// HasFilter reports whether this Filter constrains anything at all.
func (f Filter) HasFilter() bool { return f.Predicate != "" }

// sanitizeToken collapses unsafe characters then validates the whitelist
// and length bound; a failing token surfaces as InvalidFilter (§7).
func sanitizeToken(raw string) (string, error) {
	collapsed := filterUnsafe.ReplaceAllString(raw, "_")
	if len(collapsed) > MaxFilterLength {
		return "", types.NewCodeError(types.KindInvalidFilter, "token exceeds maximum length", types.ErrFilterTooLong)
	}
	if collapsed != "" && !filterWhitelist.MatchString(collapsed) {
		return "", types.NewCodeError(types.KindInvalidFilter, "token fails whitelist", types.ErrFilterCharset)
	}
	return collapsed, nil
}

// globToLike converts a glob pattern to a SQL LIKE pattern: "**" and "*"
// both become "%" (there is no recursive-vs-single distinction in a flat
// id string), "?" becomes "_" (§4.1 step 3, §9's "Glob-to-LIKE conversion"
// design note on the resulting lossiness).
func globToLike(glob string) string {
	replacer := strings.NewReplacer("**", "%", "*", "%", "?", "_")
	return replacer.Replace(glob)
}

// LanguageForPattern is the bare-extension shortcut BuildFilter uses for
// the §8 scenario (b) predicate: it maps a "*.ext" glob to a language tag
// through langForExt.
func LanguageForPattern(pattern string, langForExt func(ext string) string) (string, bool) {
	m := bareExtensionPattern.FindStringSubmatch(pattern)
	if m == nil {
		return "", false
	}
	lang := langForExt("." + m[1])
	if lang == "" {
		return "", false
	}
	return lang, true
}

// BuildFilter implements the Filter Builder contract of §4.1: given
// { path?, file_pattern? } produce a single predicate or "no filter".
// langForExt resolves a bare file extension (e.g. ".py") to its
// normalized language tag, shared with the chunker's language table.
func BuildFilter(path, filePattern string, langForExt func(ext string) string) (Filter, error) {
	var clauses []string

	if path != "" {
		sanitized, err := sanitizeToken(types.NormalizePathForID(path))
		if err != nil {
			return Filter{}, err
		}
		clauses = append(clauses, "id LIKE '"+sanitized+"%'")
	}

	if filePattern != "" {
		if lang, ok := LanguageForPattern(filePattern, langForExt); ok {
			clauses = append(clauses, "language = '"+lang+"'")
		} else {
			sanitized, err := sanitizeToken(globToLike(filePattern))
			if err != nil {
				return Filter{}, err
			}
			clauses = append(clauses, "id LIKE '%"+sanitized+"'")
		}
	}

	if len(clauses) == 0 {
		return Filter{}, nil
	}
	predicate := strings.Join(clauses, " AND ")
	if len(predicate) > MaxFilterLength {
		return Filter{}, types.NewCodeError(types.KindInvalidFilter, "predicate exceeds maximum length", types.ErrFilterTooLong)
	}
	return Filter{Predicate: predicate}, nil
}
