package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/layout"
	"github.com/goplus/capi/internal/naming"
	"github.com/goplus/capi/internal/target"
	"github.com/goplus/capi/internal/version"
	"github.com/goplus/capi/pkgs/buildsys"
)

// mockCompiler implements buildsys.Compiler by writing placeholder
// libraries named after crate into dir.
type mockCompiler struct {
	dir        string
	crate      string
	rebuilt    bool
	staticLibs []string
	err        error
	content    string // written into every library

	calls []buildsys.Request
}

func (m *mockCompiler) OutDir(req buildsys.Request) string {
	return m.dir
}

func (m *mockCompiler) Compile(ctx context.Context, req buildsys.Request) (*buildsys.Result, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, &buildsys.ToolError{Tool: "cargo", Args: []string{"rustc"}, Output: "error: could not compile", Err: m.err}
	}
	if !m.rebuilt {
		return &buildsys.Result{OutDir: m.dir}, nil
	}

	p, err := target.Parse(req.Target)
	if err != nil {
		return nil, err
	}
	names := naming.FileNames(m.crate, p)
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, err
	}
	for _, t := range req.CrateTypes {
		files := []string{names.Static}
		if t == "cdylib" {
			files = []string{names.Shared}
			if names.Import != "" {
				files = append(files, names.Import)
			}
			if names.Debug != "" {
				files = append(files, names.Debug)
			}
		}
		for _, f := range files {
			if err := os.WriteFile(filepath.Join(m.dir, f), []byte(m.content+f), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return &buildsys.Result{OutDir: m.dir, StaticLibs: m.staticLibs, Rebuilt: true}, nil
}

// mockHeaders implements buildsys.HeaderGenerator.
type mockHeaders struct {
	err   error
	calls []buildsys.HeaderRequest
}

func (m *mockHeaders) Generate(ctx context.Context, req buildsys.HeaderRequest) error {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return m.err
	}
	var b strings.Builder
	for _, d := range req.Defines {
		fmt.Fprintf(&b, "#define %s %s\n", d[0], d[1])
	}
	b.WriteString("void foo_hello(void);\n")
	if err := os.MkdirAll(filepath.Dir(req.Out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.Out, []byte(b.String()), 0o644)
}

// mockImplib implements buildsys.ImportLibraryTool. With writeDef it also
// writes the module definition file, as the MSVC tools do.
type mockImplib struct {
	writeDef bool
	calls    []buildsys.ImportLibRequest
}

func (m *mockImplib) ImportLibrary(ctx context.Context, req buildsys.ImportLibRequest) error {
	m.calls = append(m.calls, req)
	if m.writeDef {
		if err := os.WriteFile(req.DefFile, []byte("EXPORTS\n\tfoo_hello\n"), 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(req.Out, []byte("import of "+req.DLLName), 0o644)
}

type fixture struct {
	crateDir string
	compiler *mockCompiler
	headers  *mockHeaders
	implib   *mockImplib // windows-gnu
	msvc     *mockImplib
	exec     *Executor
	opts     Options
}

// newFixture sets up a crate directory and an Executor with mock tools.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	crateDir := t.TempDir()
	manifest := filepath.Join(crateDir, config.ManifestFile)
	if err := os.WriteFile(manifest, []byte("[package]\nname = \"foo\"\nversion = \"1.2.3\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		crateDir: crateDir,
		compiler: &mockCompiler{dir: filepath.Join(crateDir, "target", "release"), crate: "foo", rebuilt: true},
		headers:  &mockHeaders{},
		implib:   &mockImplib{},
		msvc:     &mockImplib{writeDef: true},
		opts: Options{
			ManifestPath: manifest,
			Release:      true,
			Install:      installOpts(t.TempDir()),
		},
	}
	f.exec = New(
		WithLogger(log.New(io.Discard)),
		WithCompiler(f.compiler),
		WithHeaderGenerator(f.headers),
		WithImportLibraryTool(target.GNU, f.implib),
		WithImportLibraryTool(target.MSVC, f.msvc),
	)
	return f
}

func installOpts(destdir string) layout.Options {
	return layout.Options{Destdir: destdir, Prefix: "/usr/local"}
}

func newConfig(t *testing.T, meta config.PackageMetadata, ov *config.Overrides) *config.Resolved {
	t.Helper()
	if meta.Name == "" {
		meta.Name = "foo"
	}
	if meta.Version == "" {
		meta.Version = "1.2.3"
	}
	cfg, err := config.Resolve(meta, ov, version.MustParse("0.10.0"))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func platform(t *testing.T, triple string) *target.Platform {
	t.Helper()
	p, err := target.Parse(triple)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func writeFile(t *testing.T, name, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
