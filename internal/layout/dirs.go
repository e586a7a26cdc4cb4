package layout

import (
	"path"
	"strings"

	"github.com/goplus/capi/internal/target"
)

// Options are the invocation-level directory choices. Empty fields fall back
// to the platform convention. Relative directories are taken relative to
// Prefix; absolute ones are used as given.
type Options struct {
	Destdir      string
	Prefix       string
	Libdir       string
	Includedir   string
	Datadir      string
	Bindir       string
	Pkgconfigdir string
}

// Dirs are the resolved installation directories as consumers see them,
// without destdir. All paths use forward slashes.
type Dirs struct {
	Prefix       string
	Libdir       string
	Includedir   string
	Datadir      string
	Bindir       string
	Pkgconfigdir string
}

// DefaultLibdir returns the library directory, relative to the prefix, used
// when no --libdir is given.
func DefaultLibdir(p *target.Platform) string {
	switch {
	case p.OS == "freebsd":
		return "lib"
	case p.Multiarch && !p.Explicit && p.ArchTriplet != "":
		return "lib/" + p.ArchTriplet
	case p.Lib64 && !p.Explicit:
		return "lib64"
	}
	return "lib"
}

// ResolveDirs applies the platform defaults to opts. An explicit override
// always wins over the platform convention.
func ResolveDirs(p *target.Platform, opts Options) Dirs {
	prefix := slash(opts.Prefix)
	if prefix == "" {
		prefix = p.DefaultPrefix()
	}
	d := Dirs{
		Prefix:     clean(prefix),
		Libdir:     under(prefix, or(opts.Libdir, DefaultLibdir(p))),
		Includedir: under(prefix, or(opts.Includedir, p.DefaultIncludedir())),
		Datadir:    under(prefix, or(opts.Datadir, p.DefaultDatadir())),
		Bindir:     under(prefix, or(opts.Bindir, p.DefaultBindir())),
	}
	if opts.Pkgconfigdir != "" {
		d.Pkgconfigdir = under(prefix, opts.Pkgconfigdir)
	} else {
		d.Pkgconfigdir = path.Join(d.Libdir, "pkgconfig")
	}
	return d
}

// under joins dir to prefix unless dir is absolute.
func under(prefix, dir string) string {
	dir = slash(dir)
	if isAbs(dir) {
		return clean(dir)
	}
	return path.Join(prefix, dir)
}

// WithDestdir prepends destdir to an absolute destination by dropping its
// root: /foo + /usr/lib gives /foo/usr/lib. An empty destdir returns dst.
func WithDestdir(destdir, dst string) string {
	if destdir == "" {
		return dst
	}
	dst = slash(dst)
	if len(dst) >= 2 && dst[1] == ':' {
		dst = dst[2:]
	}
	dst = strings.TrimLeft(dst, "/")
	return path.Join(slash(destdir), dst)
}

// clean is path.Clean keeping the slash of a bare drive root such as c:/.
func clean(p string) string {
	p = path.Clean(p)
	if len(p) == 2 && p[1] == ':' {
		p += "/"
	}
	return p
}

func isAbs(p string) bool {
	return strings.HasPrefix(p, "/") || (len(p) >= 2 && p[1] == ':')
}

func slash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func or(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
