package tools

import (
	"path/filepath"
	"strings"
)

// Fixed ignore set for the search tools. Matches what ripgrep would skip in
// a typical repo so both engines return comparable results.
var (
	ignoreDirs = map[string]struct{}{
		"node_modules": {},
		".git":         {},
		"dist":         {},
		"build":        {},
	}

	ignoreFiles = map[string]struct{}{
		"package-lock.json": {},
		"yarn.lock":         {},
		"pnpm-lock.yaml":    {},
		"go.sum":            {},
		"Cargo.lock":        {},
	}

	binaryExtensions = map[string]struct{}{
		".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {},
		".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {},
		".exe": {}, ".bin": {}, ".so": {}, ".dylib": {}, ".dll": {},
		".woff": {}, ".woff2": {}, ".ttf": {},
		".mp3": {}, ".mp4": {}, ".sqlite": {}, ".db": {},
	}
)

func ignoredDir(name string) bool {
	_, ok := ignoreDirs[name]
	return ok
}

func ignoredFile(name string) bool {
	if _, ok := ignoreFiles[name]; ok {
		return true
	}
	_, ok := binaryExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ignoreGlobs builds the ripgrep exclusion flags for the same set.
func ignoreGlobs() []string {
	var flags []string
	for dir := range ignoreDirs {
		flags = append(flags, "--glob", "!"+dir+"/**")
	}
	for file := range ignoreFiles {
		flags = append(flags, "--glob", "!"+file)
	}
	return flags
}
