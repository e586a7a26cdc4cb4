// Package pkgconfig builds and renders pkg-config (.pc) descriptors.
package pkgconfig

import (
	"path"
	"slices"
	"strings"

	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/naming"
)

// Dirs are the final install directories the descriptor points at, as seen
// by consumers (destdir is never part of them).
type Dirs struct {
	Prefix     string
	Libdir     string
	Includedir string
}

// Descriptor is a pkg-config file. It is a value object: Build and the
// derivation methods return new descriptors and never mutate their input.
type Descriptor struct {
	Filename string // without the .pc extension

	Prefix     string
	ExecPrefix string
	Libdir     string
	Includedir string

	Name        string
	Description string
	Version     string

	Libs            []string
	Cflags          []string
	Requires        []string
	RequiresPrivate []string
}

// FileName returns the descriptor file name, e.g. "foo.pc".
func (d *Descriptor) FileName() string {
	return d.Filename + ".pc"
}

// Build computes the descriptor of the library planned in arts. systemLibs
// are the native libraries the build tool reported; they are appended to
// Libs in order and without deduplication.
func Build(cfg *config.Resolved, arts []naming.Artifact, dirs Dirs, systemLibs []string) *Descriptor {
	pc := cfg.PkgConfig
	prefix := canonicalize(dirs.Prefix)
	d := &Descriptor{
		Filename:        pc.Filename,
		Prefix:          prefix,
		ExecPrefix:      "${prefix}",
		Libdir:          relativeTo(dirs.Libdir, prefix, "${exec_prefix}"),
		Includedir:      relativeTo(dirs.Includedir, prefix, "${prefix}"),
		Name:            pc.Name,
		Description:     pc.Description,
		Version:         pc.Version,
		Requires:        slices.Clone(pc.Requires),
		RequiresPrivate: slices.Clone(pc.RequiresPrivate),
	}

	libdir := "${libdir}"
	if sub := librarySubdir(cfg, arts); sub != "" {
		libdir = path.Join(libdir, sub)
	}
	d.Libs = append([]string{"-L" + canonicalize(libdir), "-l" + cfg.Library.Name}, systemLibs...)

	if cfg.Header.Enabled {
		d.Cflags = []string{"-I" + includeFlagDir(cfg.Header.Subdirectory, pc.StripIncludePathComponents)}
	}
	return d
}

// librarySubdir returns the install subdirectory of the planned libraries,
// falling back to the configured one when nothing is planned.
func librarySubdir(cfg *config.Resolved, arts []naming.Artifact) string {
	for _, a := range arts {
		if a.Dir == naming.LibDir {
			return a.Subdir
		}
	}
	return cfg.Library.InstallSubdir
}

// includeFlagDir drops the last strip components of subdir. It never strips
// past includedir itself.
func includeFlagDir(subdir string, strip int) string {
	dir := path.Join("${includedir}", subdir)
	for range strip {
		if dir == "${includedir}" {
			break
		}
		dir = path.Dir(dir)
	}
	return canonicalize(dir)
}

// relativeTo rewrites dir as variable/suffix when it lies below prefix.
func relativeTo(dir, prefix, variable string) string {
	dir = canonicalize(dir)
	if dir == prefix {
		return variable
	}
	root := prefix
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	if suffix, ok := strings.CutPrefix(dir, root); ok {
		return variable + "/" + suffix
	}
	return dir
}

// canonicalize removes "." and ".." elements and duplicate or trailing
// slashes. The empty path canonicalizes to "/".
func canonicalize(p string) string {
	if p == "" {
		return "/"
	}
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if strings.HasSuffix(p, ":") {
		// drive root, c:/
		p += "/"
	}
	return p
}

// Uninstalled returns the variant used to build against the library in its
// build directory, before installation.
func (d *Descriptor) Uninstalled(outputDir string) *Descriptor {
	u := d.clone()
	u.Filename = d.Filename + "-uninstalled"
	u.Prefix = canonicalize(outputDir)
	u.Includedir = "${prefix}/include"
	u.Libdir = "${prefix}"
	if len(u.Libs) > 0 {
		u.Libs[0] = "-L${prefix}"
	}
	return u
}

// Expand returns a copy with every ${variable} in the directories, Libs and
// Cflags substituted, giving the literal -L<libdir> and -I<includedir> form.
func (d *Descriptor) Expand() *Descriptor {
	e := d.clone()
	vars := map[string]string{}
	resolve := func(s string) string {
		for range 8 {
			next := expandVars(s, vars)
			if next == s {
				break
			}
			s = next
		}
		return s
	}
	e.Prefix = resolve(e.Prefix)
	vars["prefix"] = e.Prefix
	e.ExecPrefix = resolve(e.ExecPrefix)
	vars["exec_prefix"] = e.ExecPrefix
	e.Libdir = resolve(e.Libdir)
	vars["libdir"] = e.Libdir
	e.Includedir = resolve(e.Includedir)
	vars["includedir"] = e.Includedir
	for i, s := range e.Libs {
		e.Libs[i] = resolve(s)
	}
	for i, s := range e.Cflags {
		e.Cflags[i] = resolve(s)
	}
	return e
}

func expandVars(s string, vars map[string]string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			break
		}
		name := s[i+2 : i+j]
		b.WriteString(s[:i])
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}

func (d *Descriptor) clone() *Descriptor {
	c := *d
	c.Libs = slices.Clone(d.Libs)
	c.Cflags = slices.Clone(d.Cflags)
	c.Requires = slices.Clone(d.Requires)
	c.RequiresPrivate = slices.Clone(d.RequiresPrivate)
	return &c
}
