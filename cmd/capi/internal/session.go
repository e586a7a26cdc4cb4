package internal

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/goplus/capi/internal/build"
	"github.com/goplus/capi/internal/classify"
	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/env"
	"github.com/goplus/capi/internal/layout"
	"github.com/goplus/capi/internal/target"
	"github.com/goplus/capi/internal/version"
)

// sessionFlags are shared by every command that plans a build.
type sessionFlags struct {
	manifestPath string
	targets      []string
	targetDir    string
	debug        bool
	libraryTypes []string
	requireAll   bool
	features     []string
	jobs         int

	destdir      string
	prefix       string
	libdir       string
	includedir   string
	datadir      string
	bindir       string
	pkgconfigdir string
}

func (f *sessionFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.manifestPath, "manifest-path", "", "Path to "+config.ManifestFile)
	fs.StringSliceVar(&f.targets, "target", nil, "Build for the target triple (repeatable)")
	fs.StringVar(&f.targetDir, "target-dir", "", "Directory for all generated artifacts")
	fs.BoolVar(&f.debug, "debug", false, "Build the debug profile instead of release")
	fs.StringSliceVar(&f.libraryTypes, "library-type", nil, "Library types to build: static, shared (repeatable)")
	fs.BoolVar(&f.requireAll, "require-all", false, "Fail when a requested library type cannot be built")
	fs.StringSliceVar(&f.features, "features", nil, "Crate features to activate")
	fs.IntVarP(&f.jobs, "jobs", "j", runtime.NumCPU(), "Number of targets processed in parallel")

	fs.StringVar(&f.destdir, "destdir", "", "Staging directory prepended to every install path (default $DESTDIR)")
	fs.StringVar(&f.prefix, "prefix", "", "Installation prefix")
	fs.StringVar(&f.libdir, "libdir", "", "Library directory, relative to the prefix unless absolute")
	fs.StringVar(&f.includedir, "includedir", "", "Header directory, relative to the prefix unless absolute")
	fs.StringVar(&f.datadir, "datadir", "", "Data directory, relative to the prefix unless absolute")
	fs.StringVar(&f.bindir, "bindir", "", "Binary directory, relative to the prefix unless absolute")
	fs.StringVar(&f.pkgconfigdir, "pkgconfigdir", "", "pkg-config directory, relative to the prefix unless absolute")
}

// session is one resolved invocation: the manifest, its configuration and
// the options every target shares.
type session struct {
	cfg     *config.Resolved
	opts    build.Options
	targets []string
	host    bool // no --target given
	jobs    int
}

func (f *sessionFlags) session(ctx context.Context) (*session, error) {
	manifest := f.manifestPath
	if manifest == "" {
		var err error
		if manifest, err = env.FindManifest("."); err != nil {
			return nil, err
		}
	}
	_, cfg, err := config.Load(manifest, version.MustParse(toolVersion))
	if err != nil {
		return nil, err
	}

	kinds, err := parseKinds(f.libraryTypes)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		targets: f.targets,
		jobs:    f.jobs,
		opts: build.Options{
			ManifestPath: manifest,
			TargetDir:    env.TargetDir(manifest, f.targetDir),
			Release:      !f.debug,
			Features:     f.features,
			Kinds:        kinds,
			RequireAll:   f.requireAll,
			Install: layout.Options{
				Destdir:      env.Destdir(f.destdir),
				Prefix:       f.prefix,
				Libdir:       f.libdir,
				Includedir:   f.includedir,
				Datadir:      f.datadir,
				Bindir:       f.bindir,
				Pkgconfigdir: f.pkgconfigdir,
			},
		},
	}
	if len(s.targets) == 0 {
		s.targets = []string{target.HostTriple(ctx)}
		s.host = true
	}
	return s, nil
}

// parseKinds turns --library-type values into a request. Naming a kind
// explicitly forces it.
func parseKinds(names []string) (classify.Request, error) {
	var req classify.Request
	for _, n := range names {
		k, err := classify.ParseKind(n)
		if err != nil {
			return req, err
		}
		req.Kinds = append(req.Kinds, k)
	}
	req.Force = len(req.Kinds) > 0
	return req, nil
}

// run plans every target in parallel and hands each Output to f. Outputs
// are also returned in target order.
func (s *session) run(ctx context.Context, plan func(ctx context.Context, p *target.Platform) (*build.Output, error), f func(ctx context.Context, out *build.Output) error) ([]*build.Output, error) {
	var mu sync.Mutex
	outs := make(map[string]*build.Output, len(s.targets))
	err := build.RunTargets(ctx, s.targets, s.jobs, func(ctx context.Context, triple string) error {
		p, err := target.Detect(ctx, triple, !s.host, target.HostProbe{})
		if err != nil {
			return err
		}
		out, err := plan(ctx, p)
		if err != nil {
			return err
		}
		if f != nil {
			if err := f(ctx, out); err != nil {
				return err
			}
		}
		mu.Lock()
		outs[triple] = out
		mu.Unlock()
		return nil
	})

	var ordered []*build.Output
	for _, t := range s.targets {
		if out, ok := outs[t]; ok {
			ordered = append(ordered, out)
			delete(outs, t)
		}
	}
	return ordered, err
}

func newExecutor() *build.Executor {
	return build.New(build.WithLogger(logger))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func summary(outs []*build.Output) string {
	var n int
	for _, o := range outs {
		n += len(o.Plan.Entries)
	}
	return fmt.Sprintf("%d target(s), %d file(s)", len(outs), n)
}
