package indexer

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns is the default ignore set of §6, used when a
// caller supplies none.
var DefaultIgnorePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/.next/**",
	"**/coverage/**",
	"**/__pycache__/**",
	"**/venv/**",
	"**/.venv/**",
	"**/target/**",
	"**/vendor/**",
	"**/*.min.js",
	"**/*.bundle.js",
	"**/*.map",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/.semantic-code/**",
}

// compileIgnore builds a matcher from gitignore-style patterns, using
// github.com/sabhiram/go-gitignore so double-star directory matching
// follows real gitignore semantics instead of a hand-rolled glob walk.
func compileIgnore(patterns []string) *gitignore.GitIgnore {
	if len(patterns) == 0 {
		patterns = DefaultIgnorePatterns
	}
	return gitignore.CompileIgnoreLines(patterns...)
}
