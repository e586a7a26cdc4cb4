package target

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/goplus/capi/pkgs/buildsys"
)

// Probe inspects the machine capi runs on.
type Probe interface {
	// DebianMultiarch returns DEB_HOST_MULTIARCH on Debian-like hosts.
	DebianMultiarch(ctx context.Context) (string, bool)
	// RealLib64 reports whether /usr/lib64 exists and is not a symlink.
	RealLib64() bool
}

// Detect parses triple and fills in the host-dependent fields. explicit is
// true when the user asked for the target; such builds never use the host's
// multiarch or lib64 conventions.
func Detect(ctx context.Context, triple string, explicit bool, probe Probe) (*Platform, error) {
	p, err := Parse(triple)
	if err != nil {
		return nil, err
	}
	p.Explicit = explicit
	if explicit || probe == nil || p.OS == "freebsd" {
		return p, nil
	}
	if triplet, ok := probe.DebianMultiarch(ctx); ok {
		p.Multiarch = true
		p.ArchTriplet = triplet
		return p, nil
	}
	p.Lib64 = p.Family == Linux && probe.RealLib64()
	return p, nil
}

// EnvRustc overrides the compiler asked for the host triple, as cargo does.
const EnvRustc = "RUSTC"

// HostProbe probes the real filesystem under Root ("/" when empty).
type HostProbe struct {
	Root string
	// DpkgArchitecture is the dpkg-architecture executable; defaults to
	// looking it up in PATH.
	DpkgArchitecture string
	// Rustc reports the host triple; defaults to $RUSTC, then rustc.
	Rustc string
}

func (h HostProbe) root() string {
	if h.Root == "" {
		return "/"
	}
	return h.Root
}

func (h HostProbe) DebianMultiarch(ctx context.Context) (string, bool) {
	if _, err := os.Stat(filepath.Join(h.root(), "etc", "debian_version")); err != nil {
		return "", false
	}
	bin := h.DpkgArchitecture
	if bin == "" {
		bin = "dpkg-architecture"
	}
	var out bytes.Buffer
	if _, err := buildsys.Run(ctx, bin, []string{"-qDEB_HOST_MULTIARCH"}, nil, &out, nil); err != nil {
		return "", false
	}
	triplet := strings.TrimSpace(out.String())
	return triplet, triplet != ""
}

func (h HostProbe) RealLib64() bool {
	fi, err := os.Lstat(filepath.Join(h.root(), "usr", "lib64"))
	if err != nil {
		return false
	}
	return fi.IsDir() && fi.Mode()&os.ModeSymlink == 0
}

// Triple returns the host triple reported by "rustc -vV". When the compiler
// cannot be asked it is guessed from the Go runtime and the C library found
// under Root.
func (h HostProbe) Triple(ctx context.Context) string {
	bin := h.Rustc
	if bin == "" {
		bin = buildsys.Tool(EnvRustc, "rustc")
	}
	var out bytes.Buffer
	if _, err := buildsys.Run(ctx, bin, []string{"-vV"}, nil, &out, nil); err == nil {
		if triple, ok := RustcHost(out.String()); ok {
			return triple
		}
	}
	return guessTriple(runtime.GOOS, runtime.GOARCH, h.musl())
}

// HostTriple is the host triple as seen from the real filesystem.
func HostTriple(ctx context.Context) string {
	return HostProbe{}.Triple(ctx)
}

// RustcHost extracts the "host:" line of "rustc -vV" output.
func RustcHost(verbose string) (string, bool) {
	for _, line := range strings.Split(verbose, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "host:"); ok {
			v = strings.TrimSpace(v)
			return v, v != ""
		}
	}
	return "", false
}

// musl reports whether the musl dynamic loader is installed.
func (h HostProbe) musl() bool {
	matches, err := doublestar.Glob(os.DirFS(h.root()), "lib/ld-musl-*")
	return err == nil && len(matches) > 0
}

func guessTriple(goos, goarch string, musl bool) string {
	arch := map[string]string{
		"amd64":   "x86_64",
		"386":     "i686",
		"arm64":   "aarch64",
		"arm":     "armv7",
		"ppc64le": "powerpc64le",
		"s390x":   "s390x",
		"riscv64": "riscv64gc",
	}[goarch]
	if arch == "" {
		arch = goarch
	}
	switch goos {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	case "linux":
		env := "gnu"
		if musl {
			env = "musl"
		}
		if arch == "armv7" {
			env += "eabihf"
		}
		return arch + "-unknown-linux-" + env
	}
	return arch + "-unknown-" + goos
}
