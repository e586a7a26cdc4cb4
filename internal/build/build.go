package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/goplus/capi/internal/classify"
	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/layout"
	"github.com/goplus/capi/internal/naming"
	"github.com/goplus/capi/internal/pkgconfig"
	"github.com/goplus/capi/internal/target"
	"github.com/goplus/capi/pkgs/buildsys"
	"github.com/goplus/capi/pkgs/buildsys/cargo"
	"github.com/goplus/capi/pkgs/buildsys/cbindgen"
	"github.com/goplus/capi/pkgs/buildsys/dlltool"
	"github.com/goplus/capi/pkgs/buildsys/msvc"
)

// Options are the invocation choices shared by every target of a session.
type Options struct {
	ManifestPath string
	TargetDir    string
	Release      bool
	Features     []string
	Env          map[string]string

	Kinds classify.Request
	// RequireAll turns an infeasible requested kind into an error instead
	// of a warning.
	RequireAll bool

	Install layout.Options
}

// Output is everything computed for one target. Plan fills it without
// touching the filesystem beyond reading asset trees; Build also produces
// the files it describes.
type Output struct {
	Target   *target.Platform
	Config   *config.Resolved
	CrateDir string
	// BuildDir holds the compiled libraries and the generated header and
	// pkg-config files.
	BuildDir string
	// GeneratedDir is the build script output directory, empty if the
	// crate has none.
	GeneratedDir string

	Kinds      classify.Result
	Artifacts  []naming.Artifact
	PkgConfig  *pkgconfig.Descriptor
	Plan       *layout.Plan
	StaticLibs []string
	// Fresh is set when Build found every output up to date.
	Fresh bool

	opts Options
}

// Executor runs the external tools and writes the planned files.
type Executor struct {
	log      *log.Logger
	compiler buildsys.Compiler
	headers  buildsys.HeaderGenerator
	implibs  map[target.ABI]buildsys.ImportLibraryTool
}

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(l *log.Logger) Option {
	return func(e *Executor) { e.log = l }
}

func WithCompiler(c buildsys.Compiler) Option {
	return func(e *Executor) { e.compiler = c }
}

func WithHeaderGenerator(g buildsys.HeaderGenerator) Option {
	return func(e *Executor) { e.headers = g }
}

// WithImportLibraryTool sets the import library tool for Windows targets
// of the given ABI.
func WithImportLibraryTool(abi target.ABI, t buildsys.ImportLibraryTool) Option {
	return func(e *Executor) { e.implibs[abi] = t }
}

// New returns an Executor using cargo, cbindgen, dlltool (windows-gnu) and
// the MSVC dumpbin and lib tools unless replaced by options.
func New(opts ...Option) *Executor {
	e := &Executor{
		log:      log.Default(),
		compiler: cargo.New(),
		headers:  cbindgen.New(),
		implibs: map[target.ABI]buildsys.ImportLibraryTool{
			target.GNU:  dlltool.New(),
			target.MSVC: msvc.New(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan classifies the requested kinds, names the artifacts and resolves the
// install layout and pkg-config descriptor for p. Nothing is built.
func (e *Executor) Plan(ctx context.Context, cfg *config.Resolved, p *target.Platform, opts Options) (*Output, error) {
	kinds := classify.Classify(cfg, p, opts.Kinds)
	if err := kinds.Err(opts.RequireAll); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Triple, err)
	}
	arts, err := naming.Plan(cfg, p, kinds.Feasible)
	if err != nil {
		return nil, err
	}
	out := &Output{
		Target:    p,
		Config:    cfg,
		CrateDir:  filepath.Dir(opts.ManifestPath),
		Kinds:     kinds,
		Artifacts: arts,
		opts:      opts,
	}
	out.BuildDir = e.compiler.OutDir(out.request(nil))
	out.GeneratedDir = generatedDir(out.BuildDir, cfg.PackageName)
	if err := out.resolve(nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Build compiles the library for p and writes the header, import library
// and pkg-config files into the build directory. It returns before
// invoking any tool when the configuration cannot be planned.
func (e *Executor) Build(ctx context.Context, cfg *config.Resolved, p *target.Platform, opts Options) (*Output, error) {
	out, err := e.Plan(ctx, cfg, p, opts)
	if err != nil {
		return nil, err
	}
	for _, k := range []classify.Kind{classify.Static, classify.Shared} {
		if ue := out.Kinds.Infeasible[k]; ue != nil {
			e.log.Warn("Skipping", "target", p.Triple, "kind", k, "reason", ue.Reason)
		}
	}

	var linkArgs []string
	if out.Kinds.Has(classify.Shared) {
		if linkArgs, err = naming.LinkArgs(cfg, p, out.Plan.Dirs.Libdir, out.BuildDir); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(out.BuildDir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: out.BuildDir, Err: err}
	}
	unlock, err := lockedfile.MutexAt(filepath.Join(out.BuildDir, ".capi.lock")).Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	e.log.Info("Building", "target", p.Triple, "library", cfg.Library.Name, "kinds", kindNames(out.Kinds.Feasible))
	res, err := e.compiler.Compile(ctx, out.request(linkArgs))
	if err != nil {
		return nil, &ExternalToolError{Target: p.Triple, Stage: "compile", Err: err}
	}
	out.BuildDir = res.OutDir
	if err := out.copyCrateOutputs(); err != nil {
		return nil, err
	}
	out.GeneratedDir = generatedDir(out.BuildDir, cfg.PackageName)

	cacheFile := cachePath(out.BuildDir, cfg.Library.Name)
	cache, _ := loadCache(cacheFile)
	staticLibs := res.StaticLibs
	if !res.Rebuilt {
		// the build tool reports native libraries only when it links
		if cache != nil {
			staticLibs = cache.StaticLibs
		} else if out.Kinds.Has(classify.Static) {
			e.log.Warn("Native static libraries unknown, Libs may be incomplete", "target", p.Triple)
		}
	}
	if err := out.resolve(staticLibs); err != nil {
		return nil, err
	}

	fp, err := fingerprint(out.Plan.Dirs, out.metadata(), out.fingerprintFiles())
	if err != nil {
		return nil, &IOError{Op: "read", Path: out.BuildDir, Err: err}
	}
	if !res.Rebuilt && cache != nil && cache.Fingerprint == fp && out.outputsExist() {
		out.Fresh = true
		e.log.Info("Fresh", "target", p.Triple, "library", cfg.Library.Name)
		return out, nil
	}

	if cfg.Header.Enabled {
		if err := e.header(ctx, out); err != nil {
			return nil, err
		}
	}
	if out.needsImportLibrary() {
		if err := e.importLibrary(ctx, out); err != nil {
			return nil, err
		}
	}
	if err := out.writePkgConfig(); err != nil {
		return nil, err
	}
	e.log.Debug("Wrote", "pkg-config", out.PkgConfig.FileName(), "dir", out.BuildDir)

	cache = &buildCache{Fingerprint: fp, StaticLibs: staticLibs, BuildTime: time.Now()}
	if err := saveCache(cacheFile, cache); err != nil {
		return nil, &IOError{Op: "write", Path: cacheFile, Err: err}
	}
	return out, nil
}

func (e *Executor) header(ctx context.Context, out *Output) error {
	cfg := out.Config
	dst := out.headerPath()
	if !cfg.Header.Generation {
		src := filepath.Join(out.CrateDir, "assets", cfg.Header.FileName())
		e.log.Info("Copying", "header", src)
		return copyFile(src, dst)
	}

	e.log.Info("Generating", "header", cfg.Header.FileName())
	v := cfg.Version
	req := buildsys.HeaderRequest{
		CrateDir: out.CrateDir,
		Out:      dst,
		Defines:  cbindgen.VersionDefines(cfg.Header.Name, v.Major, v.Minor, v.Patch),
	}
	if err := e.headers.Generate(ctx, req); err != nil {
		return &ExternalToolError{Target: out.Target.Triple, Stage: "header", Err: err}
	}
	return nil
}

func (e *Executor) importLibrary(ctx context.Context, out *Output) error {
	names := naming.FileNames(out.Config.Library.Name, out.Target)
	tool, ok := e.implibs[out.Target.ABI]
	if !ok {
		return &ExternalToolError{Target: out.Target.Triple, Stage: "import-library",
			Err: fmt.Errorf("no import library tool for the %q environment", out.Target.ABI)}
	}
	req := buildsys.ImportLibRequest{
		Arch:    out.Target.Arch,
		DLL:     filepath.Join(out.BuildDir, names.Shared),
		DLLName: names.Shared,
		DefFile: filepath.Join(out.BuildDir, names.Def),
		Out:     filepath.Join(out.BuildDir, names.Import),
	}
	e.log.Info("Generating", "import-library", names.Import)
	if err := tool.ImportLibrary(ctx, req); err != nil {
		return &ExternalToolError{Target: out.Target.Triple, Stage: "import-library", Err: err}
	}
	return nil
}

func (o *Output) request(linkArgs []string) buildsys.Request {
	types := make([]string, 0, len(o.Kinds.Feasible))
	for _, k := range o.Kinds.Feasible {
		types = append(types, string(k))
	}
	return buildsys.Request{
		ManifestPath: o.opts.ManifestPath,
		Target:       o.Target.Triple,
		Explicit:     o.Target.Explicit,
		CrateTypes:   types,
		Release:      o.opts.Release,
		TargetDir:    o.opts.TargetDir,
		LinkArgs:     linkArgs,
		Rustflags:    o.Config.Library.Rustflags,
		Features:     o.opts.Features,
		Env:          o.opts.Env,
	}
}

// resolve recomputes the install plan and descriptor from the current
// directories.
func (o *Output) resolve(staticLibs []string) error {
	plan, err := layout.Resolve(o.Config, o.Target, o.Artifacts, o.opts.Install, o.sources())
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return &IOError{Op: pe.Op, Path: filepath.Join(o.CrateDir, filepath.FromSlash(pe.Path)), Err: pe.Err}
		}
		return err
	}
	o.Plan = plan
	o.StaticLibs = staticLibs
	o.PkgConfig = pkgconfig.Build(o.Config, o.Artifacts, pkgconfig.Dirs{
		Prefix:     plan.Dirs.Prefix,
		Libdir:     plan.Dirs.Libdir,
		Includedir: plan.Dirs.Includedir,
	}, staticLibs)
	return nil
}

func (o *Output) sources() layout.Sources {
	src := layout.Sources{Crate: os.DirFS(o.CrateDir), Build: os.DirFS(o.BuildDir)}
	if o.GeneratedDir != "" {
		src.Generated = os.DirFS(o.GeneratedDir)
	}
	return src
}

// Root returns the directory an entry's Source is relative to.
func (o *Output) Root(r layout.Root) string {
	switch r {
	case layout.CrateDir:
		return o.CrateDir
	case layout.GeneratedDir:
		return o.GeneratedDir
	}
	return o.BuildDir
}

func (o *Output) headerPath() string {
	return filepath.Join(o.BuildDir, filepath.FromSlash(layout.HeaderSource(o.Config)))
}

func (o *Output) pkgConfigPaths() (installed, uninstalled string) {
	return filepath.Join(o.BuildDir, o.PkgConfig.FileName()),
		filepath.Join(o.BuildDir, o.PkgConfig.Uninstalled(o.BuildDir).FileName())
}

func (o *Output) needsImportLibrary() bool {
	p := o.Target
	return p.Family == target.Windows && o.Kinds.Has(classify.Shared) && o.Config.Library.ImportLibrary
}

func (o *Output) writePkgConfig() error {
	installed, uninstalled := o.pkgConfigPaths()
	if err := os.WriteFile(installed, o.PkgConfig.Render(), 0o644); err != nil {
		return &IOError{Op: "write", Path: installed, Err: err}
	}
	if err := os.WriteFile(uninstalled, o.PkgConfig.Uninstalled(o.BuildDir).Render(), 0o644); err != nil {
		return &IOError{Op: "write", Path: uninstalled, Err: err}
	}
	return nil
}

// metadata is the configuration the generated files depend on beyond the
// compiled libraries.
func (o *Output) metadata() []byte {
	h := o.Config.Header
	meta := fmt.Sprintf("header=%s/%s enabled=%t generation=%t\n", h.Subdirectory, h.FileName(), h.Enabled, h.Generation)
	return append([]byte(meta), o.PkgConfig.Render()...)
}

// fingerprintFiles are the inputs of the generated files: the compiled
// libraries and the header source.
func (o *Output) fingerprintFiles() []string {
	var files []string
	for _, a := range o.Artifacts {
		if a.Kind == naming.StaticLib || a.Kind == naming.SharedLib {
			files = append(files, filepath.Join(o.BuildDir, a.Source))
		}
	}
	if o.Config.Header.Enabled {
		if o.Config.Header.Generation {
			files = append(files, filepath.Join(o.CrateDir, cbindgen.ConfigFile))
		} else {
			files = append(files, filepath.Join(o.CrateDir, "assets", o.Config.Header.FileName()))
		}
	}
	return files
}

// buildOutputs lists the files Build leaves in the build directory.
func (o *Output) buildOutputs() []string {
	var files []string
	for _, a := range o.Artifacts {
		if !a.IsLink() {
			files = append(files, filepath.Join(o.BuildDir, a.Source))
		}
	}
	if o.Config.Header.Enabled {
		files = append(files, o.headerPath())
	}
	installed, uninstalled := o.pkgConfigPaths()
	return append(files, installed, uninstalled, cachePath(o.BuildDir, o.Config.Library.Name))
}

func (o *Output) outputsExist() bool {
	installed, uninstalled := o.pkgConfigPaths()
	files := []string{installed, uninstalled}
	if o.Config.Header.Enabled {
		files = append(files, o.headerPath())
	}
	if o.needsImportLibrary() {
		names := naming.FileNames(o.Config.Library.Name, o.Target)
		files = append(files, filepath.Join(o.BuildDir, names.Import), filepath.Join(o.BuildDir, names.Def))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

// copyCrateOutputs copies the libraries the build tool named after the
// crate to the library names the plan uses. The originals stay in place.
func (o *Output) copyCrateOutputs() error {
	from := naming.FileNames(o.Config.CrateName, o.Target)
	to := naming.FileNames(o.Config.Library.Name, o.Target)
	if from == to {
		return nil
	}
	var pairs [][2]string
	if o.Kinds.Has(classify.Static) {
		pairs = append(pairs, [2]string{from.Static, to.Static})
	}
	if o.Kinds.Has(classify.Shared) {
		pairs = append(pairs, [2]string{from.Shared, to.Shared})
		if to.Import != "" {
			pairs = append(pairs, [2]string{from.Import, to.Import})
		}
		if to.Debug != "" {
			pairs = append(pairs, [2]string{from.Debug, to.Debug})
		}
	}
	for _, p := range pairs {
		src := filepath.Join(o.BuildDir, p[0])
		fi, err := os.Stat(src)
		if (err != nil && p[0] == from.Import) || (p[0] == from.Debug && (err != nil || fi.IsDir())) {
			// import libraries are regenerated; debug information is optional
			continue
		}
		if err := copyFile(src, filepath.Join(o.BuildDir, p[1])); err != nil {
			return err
		}
	}
	return nil
}

// generatedDir finds the newest build script output directory of pkg.
func generatedDir(buildDir, pkg string) string {
	matches, err := doublestar.Glob(os.DirFS(buildDir), "build/"+pkg+"-*/out")
	if err != nil || len(matches) == 0 {
		return ""
	}
	var newest string
	var newestTime time.Time
	for _, m := range matches {
		dir := filepath.Join(buildDir, filepath.FromSlash(m))
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			continue
		}
		if newest == "" || fi.ModTime().After(newestTime) {
			newest, newestTime = dir, fi.ModTime()
		}
	}
	return newest
}

func kindNames(kinds []classify.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}
