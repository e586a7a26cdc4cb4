package buildsys

import (
	"context"
	"fmt"
	"strings"
)

// Request describes one compilation of a crate's library target.
type Request struct {
	ManifestPath string
	// Target is the target triple. It is passed to the tool only when
	// Explicit is set, so host builds share the tool's default output dir.
	Target   string
	Explicit bool

	// CrateTypes are the library kinds to produce (staticlib, cdylib).
	CrateTypes []string
	Release    bool
	TargetDir  string

	// LinkArgs are passed to the linker of the shared library.
	LinkArgs []string
	// Rustflags are extra compiler flags for the library crate only.
	Rustflags []string
	Features  []string

	Env map[string]string
}

// Result describes a successful compilation.
type Result struct {
	// OutDir holds the produced libraries.
	OutDir string
	// StaticLibs are the native libraries a static build must link against,
	// as reported by the compiler. Empty when nothing was rebuilt.
	StaticLibs []string
	// Rebuilt reports whether the library was compiled rather than reused.
	Rebuilt bool
}

// Compiler drives the external build tool.
type Compiler interface {
	// OutDir returns where Compile leaves the libraries of req. It is known
	// before compiling so linker arguments can point into it.
	OutDir(req Request) string
	Compile(ctx context.Context, req Request) (*Result, error)
}

// HeaderRequest asks for a C header for the crate in CrateDir.
type HeaderRequest struct {
	CrateDir string
	Out      string
	// Defines are appended as "#define K V" lines in the generated header's
	// preamble, in order.
	Defines [][2]string
}

// HeaderGenerator drives the external C header generator.
type HeaderGenerator interface {
	Generate(ctx context.Context, req HeaderRequest) error
}

// ImportLibRequest asks for a Windows import library built from a module
// definition file.
type ImportLibRequest struct {
	Arch    string // target triple architecture
	DLL     string // path of the built library
	DLLName string
	DefFile string
	Out     string
}

// ImportLibraryTool builds Windows import libraries.
type ImportLibraryTool interface {
	ImportLibrary(ctx context.Context, req ImportLibRequest) error
}

// ToolError reports a failed external process along with its diagnostic
// output.
type ToolError struct {
	Tool   string
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
