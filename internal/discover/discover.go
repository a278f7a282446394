// Package discover walks the configured source directories and yields the
// relative paths of markdown files that survive the layered ignore rules.
package discover

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
)

// builtinIgnoreDirs are always excluded and cannot be overridden.
var builtinIgnoreDirs = map[string]bool{
	".claude":      true,
	".cursor":      true,
	".vscode":      true,
	".idea":        true,
	".git":         true,
	"node_modules": true,
	".obsidian":    true,
	"__pycache__":  true,
	".next":        true,
	".nuxt":        true,
	".svelte-kit":  true,
	"target":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
}

// Discoverer enumerates markdown files under a project root.
type Discoverer struct {
	root         string
	sourceDirs   []string
	userPatterns *ignore.GitIgnore
	logger       *zap.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Discoverer) { d.logger = logger }
}

// New creates a Discoverer for the given project root and source directories
// (relative to root). User patterns use gitignore glob syntax and can only
// add exclusions.
func New(root string, sourceDirs []string, userPatterns []string, opts ...Option) *Discoverer {
	d := &Discoverer{
		root:       root,
		sourceDirs: sourceDirs,
		logger:     zap.NewNop(),
	}
	if len(userPatterns) > 0 {
		d.userPatterns = ignore.CompileIgnoreLines(userPatterns...)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// gitignoreLayer is a compiled .gitignore scoped to the directory containing it.
type gitignoreLayer struct {
	// base is the slash-separated path of the directory relative to root,
	// "" for the root itself.
	base    string
	matcher *ignore.GitIgnore
}

// Discover walks the source directories and returns slash-separated paths of
// .md files relative to the project root, lexicographically sorted and
// deduplicated. Missing source directories are logged and skipped.
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var layers []gitignoreLayer
	if layer := d.loadGitignore(""); layer != nil {
		layers = append(layers, *layer)
	}

	for _, src := range d.sourceDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs := src
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(d.root, src)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			d.logger.Warn("source directory missing, skipping", zap.String("dir", src))
			continue
		}

		walkErr := filepath.WalkDir(abs, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				d.logger.Debug("walk error, skipping entry", zap.String("path", path), zap.Error(err))
				if entry != nil && entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(d.root, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if entry.IsDir() {
				if builtinIgnoreDirs[entry.Name()] {
					return filepath.SkipDir
				}
				if d.ignored(rel+"/", layers) {
					return filepath.SkipDir
				}
				if layer := d.loadGitignore(rel); layer != nil {
					layers = append(layers, *layer)
				}
				return nil
			}
			if !strings.HasSuffix(entry.Name(), ".md") {
				return nil
			}
			if d.ignored(rel, layers) {
				return nil
			}
			seen[rel] = true
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	d.logger.Debug("discovery complete", zap.Int("files", len(paths)))
	return paths, nil
}

// ShouldIndex reports whether a single path (relative to root) would be
// yielded by Discover. Used by the watcher to filter events.
func (d *Discoverer) ShouldIndex(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	if !strings.HasSuffix(relPath, ".md") {
		return false
	}
	for _, seg := range strings.Split(relPath, "/") {
		if builtinIgnoreDirs[seg] {
			return false
		}
	}
	var layers []gitignoreLayer
	if layer := d.loadGitignore(""); layer != nil {
		layers = append(layers, *layer)
	}
	dir := filepath.ToSlash(filepath.Dir(relPath))
	if dir != "." {
		parts := strings.Split(dir, "/")
		for i := range parts {
			sub := strings.Join(parts[:i+1], "/")
			if layer := d.loadGitignore(sub); layer != nil {
				layers = append(layers, *layer)
			}
		}
	}
	return !d.ignored(relPath, layers)
}

func (d *Discoverer) ignored(rel string, layers []gitignoreLayer) bool {
	if d.userPatterns != nil && d.userPatterns.MatchesPath(rel) {
		return true
	}
	for _, layer := range layers {
		scoped := rel
		if layer.base != "" {
			if !strings.HasPrefix(rel, layer.base+"/") {
				continue
			}
			scoped = strings.TrimPrefix(rel, layer.base+"/")
		}
		if layer.matcher.MatchesPath(scoped) {
			return true
		}
	}
	return false
}

func (d *Discoverer) loadGitignore(relDir string) *gitignoreLayer {
	path := filepath.Join(d.root, filepath.FromSlash(relDir), ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		d.logger.Debug("unreadable gitignore, skipping", zap.String("path", path), zap.Error(err))
		return nil
	}
	return &gitignoreLayer{base: relDir, matcher: matcher}
}
