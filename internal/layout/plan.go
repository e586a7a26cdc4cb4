package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/naming"
	"github.com/goplus/capi/internal/target"
)

// EntryKind tells the executor what an Entry installs.
type EntryKind int

const (
	Library EntryKind = iota
	Link
	Header
	PkgConfig
	Include
	Data
	Debug
)

func (k EntryKind) String() string {
	switch k {
	case Library:
		return "library"
	case Link:
		return "link"
	case Header:
		return "header"
	case PkgConfig:
		return "pkg-config"
	case Include:
		return "include"
	case Data:
		return "data"
	case Debug:
		return "debug-info"
	}
	return fmt.Sprintf("EntryKind(%d)", int(k))
}

// Root names the tree an Entry's Source is relative to.
type Root int

const (
	BuildDir     Root = iota // the per-target build output directory
	CrateDir                 // the directory holding the manifest
	GeneratedDir             // the build script output directory
)

// Entry is one file or link to install.
type Entry struct {
	Kind   EntryKind
	Root   Root
	Source string // slash separated, relative to Root; empty for links
	Dest   string // absolute, destdir applied
	// LinkTarget is the link content, relative to Dest's directory.
	LinkTarget string
}

// Plan is the resolved install layout of one target.
type Plan struct {
	Destdir string
	Dirs    Dirs
	Entries []Entry
}

// Dests returns every destination in plan order.
func (p *Plan) Dests() []string {
	out := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Dest
	}
	return out
}

// Sources are the trees asset patterns are matched against. Generated may
// be nil when the crate has no build script output. Build is the build
// directory, searched for debug information; when nil the debug info is
// planned as a single file.
type Sources struct {
	Crate     fs.FS
	Generated fs.FS
	Build     fs.FS
}

// HeaderSource is where the build step leaves the header, relative to the
// build directory. It matches the uninstalled pkg-config includedir.
func HeaderSource(cfg *config.Resolved) string {
	return path.Join("include", cfg.Header.Subdirectory, cfg.Header.FileName())
}

// Resolve computes the install plan. It reads nothing but the trees in src;
// identical inputs give identical plans.
func Resolve(cfg *config.Resolved, p *target.Platform, arts []naming.Artifact, opts Options, src Sources) (*Plan, error) {
	plan := &Plan{Destdir: opts.Destdir, Dirs: ResolveDirs(p, opts)}
	dirs := plan.Dirs
	dest := func(elem ...string) string {
		return WithDestdir(opts.Destdir, path.Join(elem...))
	}

	for _, a := range arts {
		base := dirs.Libdir
		if a.Dir == naming.BinDir {
			base = dirs.Bindir
		}
		if a.Kind == naming.DebugInfo {
			entries, err := debugEntries(a, src.Build, func(rel string) string {
				return dest(base, a.Subdir, rel)
			})
			if err != nil {
				return nil, err
			}
			plan.Entries = append(plan.Entries, entries...)
			continue
		}
		e := Entry{Kind: Library, Source: a.Source, Dest: dest(base, a.Subdir, a.Filename)}
		if a.IsLink() {
			e.Kind, e.Source, e.LinkTarget = Link, "", a.LinkTarget
		}
		plan.Entries = append(plan.Entries, e)
	}

	plan.Entries = append(plan.Entries, Entry{
		Kind:   PkgConfig,
		Source: cfg.PkgConfig.Filename + ".pc",
		Dest:   dest(dirs.Pkgconfigdir, cfg.PkgConfig.Filename+".pc"),
	})

	if cfg.Header.Enabled {
		plan.Entries = append(plan.Entries, Entry{
			Kind:   Header,
			Source: HeaderSource(cfg),
			Dest:   dest(dirs.Includedir, cfg.Header.Subdirectory, cfg.Header.FileName()),
		})
		incl, err := expand(cfg.Install.Include, src, Include, func(rel string) string {
			return dest(dirs.Includedir, rel)
		})
		if err != nil {
			return nil, err
		}
		plan.Entries = append(plan.Entries, incl...)
	}

	data, err := expand(cfg.Install.Data, src, Data, func(rel string) string {
		return dest(dirs.Datadir, rel)
	})
	if err != nil {
		return nil, err
	}
	plan.Entries = append(plan.Entries, data...)

	seen := make(map[string]Entry, len(plan.Entries))
	for _, e := range plan.Entries {
		if prev, ok := seen[e.Dest]; ok {
			return nil, fmt.Errorf("install destination %s is produced twice (%s %s and %s %s)",
				e.Dest, prev.Kind, sourceOf(prev), e.Kind, sourceOf(e))
		}
		seen[e.Dest] = e
	}
	return plan, nil
}

// debugEntries plans the debug information a. A directory is installed
// with its contents; a missing file is skipped.
func debugEntries(a naming.Artifact, build fs.FS, dest func(rel string) string) ([]Entry, error) {
	if build == nil {
		return []Entry{{Kind: Debug, Source: a.Source, Dest: dest(a.Filename)}}, nil
	}
	pairs, err := rename(build, a.Source, a.Filename)
	if err != nil {
		return nil, fmt.Errorf("debug information %s: %w", a.Source, err)
	}
	entries := make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, Entry{Kind: Debug, Source: p[0], Dest: dest(p[1])})
	}
	return entries, nil
}

func sourceOf(e Entry) string {
	if e.Source == "" {
		return "-> " + e.LinkTarget
	}
	return e.Source
}

// expand matches each install target and maps every file below the
// pattern's fixed prefix to to/<relative path>.
func expand(targets []config.InstallTarget, src Sources, kind EntryKind, dest func(rel string) string) ([]Entry, error) {
	var entries []Entry
	for _, t := range targets {
		fsys, root := src.Crate, CrateDir
		if t.Generated {
			fsys, root = src.Generated, GeneratedDir
		}
		if fsys == nil {
			continue
		}
		pairs, err := Match(fsys, t.From, t.To)
		if err != nil {
			return nil, err
		}
		if len(pairs) == 0 && !isDefault(t) {
			return nil, &fs.PathError{Op: "install", Path: t.From, Err: fs.ErrNotExist}
		}
		for _, p := range pairs {
			entries = append(entries, Entry{Kind: kind, Root: root, Source: p[0], Dest: dest(p[1])})
		}
	}
	return entries, nil
}

func isDefault(t config.InstallTarget) bool {
	switch t.From {
	case config.DefaultAssetInclude, config.DefaultGeneratedInclude,
		config.DefaultAssetData, config.DefaultGeneratedData:
		return true
	}
	return false
}

// Match expands pattern over fsys and returns sorted (source, destination)
// pairs, destinations relative to the install directory. The part of a match
// below the pattern's base (the leading directories free of wildcards) is
// kept under to. A pattern without wildcards renames the single
// file or directory it names to to.
func Match(fsys fs.FS, pattern, to string) ([][2]string, error) {
	pattern = path.Clean(strings.TrimPrefix(pattern, "./"))
	if !fs.ValidPath(pattern) {
		return nil, fmt.Errorf("install pattern %q must be relative and stay inside its root", pattern)
	}

	if !hasMeta(pattern) {
		return rename(fsys, pattern, to)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid install pattern %q", pattern)
	}

	base, _ := doublestar.SplitPattern(pattern)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("install pattern %q: %w", pattern, err)
	}
	slices.Sort(matches)

	pairs := make([][2]string, 0, len(matches))
	for _, m := range matches {
		rel := m
		if base != "." {
			rel = strings.TrimPrefix(m, base+"/")
		}
		pairs = append(pairs, [2]string{m, path.Join(to, rel)})
	}
	return pairs, nil
}

func rename(fsys fs.FS, name, to string) ([][2]string, error) {
	fi, err := fs.Stat(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !fi.IsDir() {
		return [][2]string{{name, to}}, nil
	}
	var pairs [][2]string
	err = fs.WalkDir(fsys, name, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		pairs = append(pairs, [2]string{p, path.Join(to, strings.TrimPrefix(p, name+"/"))})
		return nil
	})
	return pairs, err
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{\`)
}
