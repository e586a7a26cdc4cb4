package cargo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goplus/capi/pkgs/buildsys"
)

// EnvCargo overrides the cargo executable.
const EnvCargo = "CAPI_CARGO"

// Cargo compiles a crate's library target with `cargo rustc`.
type Cargo struct {
	// Bin is the cargo executable; empty means $CAPI_CARGO or "cargo".
	Bin    string
	Stdout io.Writer
	Stderr io.Writer
}

var _ buildsys.Compiler = (*Cargo)(nil)

// New returns a Cargo streaming the tool output to the process' stderr.
func New() *Cargo {
	return &Cargo{Stdout: os.Stderr, Stderr: os.Stderr}
}

func (c *Cargo) bin() string {
	if c.Bin != "" {
		return c.Bin
	}
	return buildsys.Tool(EnvCargo, "cargo")
}

// Args returns the cargo command line for req.
func Args(req buildsys.Request) []string {
	args := []string{"rustc", "--lib"}
	if req.ManifestPath != "" {
		args = append(args, "--manifest-path", req.ManifestPath)
	}
	for _, t := range req.CrateTypes {
		args = append(args, "--crate-type", t)
	}
	if req.Release {
		args = append(args, "--release")
	}
	if req.Explicit && req.Target != "" {
		args = append(args, "--target", req.Target)
	}
	if req.TargetDir != "" {
		args = append(args, "--target-dir", req.TargetDir)
	}
	if len(req.Features) > 0 {
		args = append(args, "--features", strings.Join(req.Features, ","))
	}

	args = append(args, "--")
	for _, a := range req.LinkArgs {
		args = append(args, "-C", "link-arg="+a)
	}
	args = append(args, req.Rustflags...)
	return append(args, "--print", "native-static-libs")
}

// OutDir returns the directory cargo leaves the libraries of req in.
func OutDir(req buildsys.Request) string {
	dir := req.TargetDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(req.ManifestPath), "target")
	}
	if req.Explicit && req.Target != "" {
		dir = filepath.Join(dir, req.Target)
	}
	if req.Release {
		return filepath.Join(dir, "release")
	}
	return filepath.Join(dir, "debug")
}

func (c *Cargo) OutDir(req buildsys.Request) string {
	return OutDir(req)
}

func (c *Cargo) Compile(ctx context.Context, req buildsys.Request) (*buildsys.Result, error) {
	stderr, err := buildsys.Run(ctx, c.bin(), Args(req), req.Env, c.Stdout, c.Stderr)
	if err != nil {
		return nil, err
	}
	return &buildsys.Result{
		OutDir:     OutDir(req),
		StaticLibs: StaticLibs(stderr),
		Rebuilt:    compiling.MatchString(stderr),
	}, nil
}

var (
	compiling    = regexp.MustCompile(`(?m)^\s*Compiling\s`)
	nativeStatic = regexp.MustCompile(`(?m)native-static-libs:(.*)$`)
)

// StaticLibs extracts the native-static-libs note from compiler output.
// The last note wins, matching the library crate built last.
func StaticLibs(stderr string) []string {
	m := nativeStatic.FindAllStringSubmatch(stderr, -1)
	if len(m) == 0 {
		return nil
	}
	return strings.Fields(m[len(m)-1][1])
}
