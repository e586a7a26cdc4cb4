package layout

import (
	"errors"
	"io/fs"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/goplus/capi/internal/classify"
	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/naming"
	"github.com/goplus/capi/internal/target"
	"github.com/goplus/capi/internal/version"
)

func platform(t *testing.T, triple string) *target.Platform {
	t.Helper()
	p, err := target.Parse(triple)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func newConfig() *config.Resolved {
	v := version.MustParse("1.2.3")
	return &config.Resolved{
		PackageName: "foo",
		CrateName:   "foo",
		Version:     v,
		Header:      config.HeaderConfig{Name: "foo", Subdirectory: "foo", Generation: true, Enabled: true},
		PkgConfig:   config.PkgConfigConfig{Name: "foo", Filename: "foo", Version: "1.2.3"},
		Library:     config.LibraryConfig{Name: "foo", Version: v, Versioning: true, ImportLibrary: true},
		Install: config.InstallConfig{
			Include: []config.InstallTarget{
				{From: config.DefaultAssetInclude, To: "foo"},
				{From: config.DefaultGeneratedInclude, To: "foo", Generated: true},
			},
			Data: []config.InstallTarget{
				{From: config.DefaultAssetData, To: "foo"},
				{From: config.DefaultGeneratedData, To: "foo", Generated: true},
			},
		},
	}
}

func TestResolveDirs(t *testing.T) {
	multiarch := platform(t, "x86_64-unknown-linux-gnu")
	multiarch.Multiarch = true

	explicit := platform(t, "x86_64-unknown-linux-gnu")
	explicit.Multiarch, explicit.Explicit = true, true

	lib64 := platform(t, "x86_64-unknown-linux-gnu")
	lib64.Lib64 = true

	freebsd := platform(t, "x86_64-unknown-freebsd")
	freebsd.Multiarch = true

	tests := []struct {
		name   string
		p      *target.Platform
		opts   Options
		libdir string
	}{
		{"multiarch host", multiarch, Options{}, "/usr/local/lib/x86_64-linux-gnu"},
		{"multiarch with --libdir", multiarch, Options{Libdir: "lib"}, "/usr/local/lib"},
		{"multiarch with absolute --libdir", multiarch, Options{Libdir: "/opt/lib"}, "/opt/lib"},
		{"explicit target", explicit, Options{}, "/usr/local/lib"},
		{"lib64 host", lib64, Options{Prefix: "/usr"}, "/usr/lib64"},
		{"freebsd", freebsd, Options{}, "/usr/local/lib"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveDirs(tt.p, tt.opts).Libdir; got != tt.libdir {
				t.Errorf("Libdir = %s, want %s", got, tt.libdir)
			}
		})
	}
}

func TestResolveDirsDefaults(t *testing.T) {
	got := ResolveDirs(platform(t, "x86_64-unknown-linux-gnu"), Options{Prefix: "/usr", Datadir: "/srv/share"})
	want := Dirs{
		Prefix:       "/usr",
		Libdir:       "/usr/lib",
		Includedir:   "/usr/include",
		Datadir:      "/srv/share",
		Bindir:       "/usr/bin",
		Pkgconfigdir: "/usr/lib/pkgconfig",
	}
	if got != want {
		t.Errorf("ResolveDirs =\n%+v\nwant\n%+v", got, want)
	}

	win := ResolveDirs(platform(t, "x86_64-pc-windows-gnu"), Options{})
	if win.Prefix != "c:/" || win.Bindir != "c:/bin" || win.Pkgconfigdir != "c:/lib/pkgconfig" {
		t.Errorf("windows dirs: %+v", win)
	}
}

func TestWithDestdir(t *testing.T) {
	tests := []struct{ destdir, dst, want string }{
		{"/foo", "/bar/./..", "/foo"},
		{"/foo", "/usr/lib", "/foo/usr/lib"},
		{"foo", "bar", "foo/bar"},
		{"", "/usr/lib", "/usr/lib"},
		{"/stage", "c:/lib", "/stage/lib"},
	}
	for _, tt := range tests {
		if got := WithDestdir(tt.destdir, tt.dst); got != tt.want {
			t.Errorf("WithDestdir(%q, %q) = %q, want %q", tt.destdir, tt.dst, got, tt.want)
		}
	}
}

func plan(t *testing.T, cfg *config.Resolved, triple string, opts Options, src Sources) *Plan {
	t.Helper()
	p := platform(t, triple)
	arts, err := naming.Plan(cfg, p, classify.DefaultKinds(p))
	if err != nil {
		t.Fatal(err)
	}
	pl, err := Resolve(cfg, p, arts, opts, src)
	if err != nil {
		t.Fatal(err)
	}
	return pl
}

func TestResolveLinux(t *testing.T) {
	pl := plan(t, newConfig(), "x86_64-unknown-linux-gnu", Options{Destdir: "/stage", Prefix: "/usr"}, Sources{})
	want := []Entry{
		{Kind: Library, Source: "libfoo.a", Dest: "/stage/usr/lib/libfoo.a"},
		{Kind: Library, Source: "libfoo.so", Dest: "/stage/usr/lib/libfoo.so.1.2.3"},
		{Kind: Link, Dest: "/stage/usr/lib/libfoo.so.1", LinkTarget: "libfoo.so.1.2.3"},
		{Kind: Link, Dest: "/stage/usr/lib/libfoo.so", LinkTarget: "libfoo.so.1"},
		{Kind: PkgConfig, Source: "foo.pc", Dest: "/stage/usr/lib/pkgconfig/foo.pc"},
		{Kind: Header, Source: "include/foo/foo.h", Dest: "/stage/usr/include/foo/foo.h"},
	}
	if !reflect.DeepEqual(pl.Entries, want) {
		t.Errorf("Entries =\n%+v\nwant\n%+v", pl.Entries, want)
	}
	if pl.Dirs.Libdir != "/usr/lib" {
		t.Errorf("Dirs must not carry destdir: %+v", pl.Dirs)
	}
}

func TestResolveHeaderSubdirectory(t *testing.T) {
	cfg := newConfig()
	cfg.Header.Subdirectory = "foo-2.0/bar"
	cfg.PkgConfig.StripIncludePathComponents = 1
	pl := plan(t, cfg, "x86_64-unknown-linux-gnu", Options{Prefix: "/usr"}, Sources{})
	var hdr Entry
	for _, e := range pl.Entries {
		if e.Kind == Header {
			hdr = e
		}
	}
	if hdr.Dest != "/usr/include/foo-2.0/bar/foo.h" {
		t.Errorf("header installed at %s", hdr.Dest)
	}

	cfg.Header.Subdirectory = ""
	pl = plan(t, cfg, "x86_64-unknown-linux-gnu", Options{Prefix: "/usr"}, Sources{})
	for _, e := range pl.Entries {
		if e.Kind == Header && e.Dest != "/usr/include/foo.h" {
			t.Errorf("header without subdirectory installed at %s", e.Dest)
		}
	}
}

func TestResolveHeaderDisabled(t *testing.T) {
	cfg := newConfig()
	cfg.Header.Enabled = false
	crate := fstest.MapFS{"assets/capi/include/extra.h": {Data: []byte("x")}}
	pl := plan(t, cfg, "x86_64-unknown-linux-gnu", Options{}, Sources{Crate: crate})
	for _, e := range pl.Entries {
		if e.Kind == Header || e.Kind == Include {
			t.Errorf("unexpected %s entry %s", e.Kind, e.Dest)
		}
	}
}

func TestResolveWindows(t *testing.T) {
	pl := plan(t, newConfig(), "x86_64-pc-windows-gnu", Options{Prefix: "/mingw"}, Sources{})
	got := map[string]EntryKind{}
	for _, e := range pl.Entries {
		got[e.Dest] = e.Kind
	}
	for _, dest := range []string{"/mingw/bin/foo.dll", "/mingw/lib/libfoo.dll.a", "/mingw/lib/foo.def", "/mingw/lib/libfoo.a"} {
		if _, ok := got[dest]; !ok {
			t.Errorf("missing %s in %v", dest, pl.Dests())
		}
	}
}

func TestResolveDebugInfo(t *testing.T) {
	debug := func(pl *Plan) []string {
		var got []string
		for _, e := range pl.Entries {
			if e.Kind == Debug {
				got = append(got, e.Source+" => "+e.Dest)
			}
		}
		return got
	}
	opts := Options{Prefix: "/p"}

	build := fstest.MapFS{"foo.pdb": {Data: []byte("pdb")}}
	got := debug(plan(t, newConfig(), "x86_64-pc-windows-msvc", opts, Sources{Build: build}))
	if want := []string{"foo.pdb => /p/bin/foo.pdb"}; !reflect.DeepEqual(got, want) {
		t.Errorf("debug entries = %v, want %v", got, want)
	}

	cfg := newConfig()
	cfg.Library.InstallSubdir = "plugins"
	build = fstest.MapFS{
		"foo.pdb/a.pdb":     {Data: []byte("a")},
		"foo.pdb/sub/b.pdb": {Data: []byte("b")},
	}
	got = debug(plan(t, cfg, "x86_64-pc-windows-msvc", opts, Sources{Build: build}))
	want := []string{
		"foo.pdb/a.pdb => /p/lib/plugins/foo.pdb/a.pdb",
		"foo.pdb/sub/b.pdb => /p/lib/plugins/foo.pdb/sub/b.pdb",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("debug entries = %v, want %v", got, want)
	}

	if got := debug(plan(t, newConfig(), "x86_64-pc-windows-msvc", opts, Sources{Build: fstest.MapFS{}})); len(got) != 0 {
		t.Errorf("absent debug information planned: %v", got)
	}
	if got := debug(plan(t, newConfig(), "x86_64-pc-windows-gnu", opts, Sources{Build: build})); len(got) != 0 {
		t.Errorf("windows-gnu has no separate debug information: %v", got)
	}
}

func TestResolveAssets(t *testing.T) {
	cfg := newConfig()
	cfg.Install.Data = append(cfg.Install.Data,
		config.InstallTarget{From: "extra/*.txt", To: "foo/docs"},
		config.InstallTarget{From: "LICENSE", To: "foo/COPYING"},
	)
	crate := fstest.MapFS{
		"assets/capi/include/foo/extra.h":   {Data: []byte("a")},
		"assets/capi/include/foo/sub/sub.h": {Data: []byte("b")},
		"assets/capi/share/foo.conf":        {Data: []byte("c")},
		"extra/a.txt":                       {Data: []byte("d")},
		"extra/nested/b.txt":                {Data: []byte("e")},
		"LICENSE":                           {Data: []byte("f")},
	}
	generated := fstest.MapFS{"capi/include/gen.h": {Data: []byte("g")}}
	pl := plan(t, cfg, "x86_64-unknown-linux-gnu", Options{Prefix: "/usr"}, Sources{Crate: crate, Generated: generated})

	var got []string
	for _, e := range pl.Entries {
		if e.Kind == Include || e.Kind == Data {
			got = append(got, e.Source+" => "+e.Dest)
		}
	}
	want := []string{
		"assets/capi/include/foo/extra.h => /usr/include/foo/foo/extra.h",
		"assets/capi/include/foo/sub/sub.h => /usr/include/foo/foo/sub/sub.h",
		"capi/include/gen.h => /usr/include/foo/gen.h",
		"assets/capi/share/foo.conf => /usr/share/foo/foo.conf",
		"extra/a.txt => /usr/share/foo/docs/a.txt",
		"LICENSE => /usr/share/foo/COPYING",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("assets =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestResolveMissingAsset(t *testing.T) {
	cfg := newConfig()
	cfg.Install.Data = append(cfg.Install.Data, config.InstallTarget{From: "missing/**/*", To: "foo"})
	p := platform(t, "x86_64-unknown-linux-gnu")
	_, err := Resolve(cfg, p, nil, Options{}, Sources{Crate: fstest.MapFS{}})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Resolve error = %v, want ErrNotExist", err)
	}
}

func TestResolveDuplicateDestination(t *testing.T) {
	cfg := newConfig()
	cfg.Install.Include = append(cfg.Install.Include, config.InstallTarget{From: "foo.h", To: "foo/foo.h"})
	crate := fstest.MapFS{"foo.h": {Data: []byte("x")}}
	p := platform(t, "x86_64-unknown-linux-gnu")
	if _, err := Resolve(cfg, p, nil, Options{}, Sources{Crate: crate}); err == nil {
		t.Error("an asset shadowing the generated header should be rejected")
	}
}

func TestResolveDeterministic(t *testing.T) {
	crate := fstest.MapFS{
		"assets/capi/share/b": {Data: []byte("b")},
		"assets/capi/share/a": {Data: []byte("a")},
	}
	opts := Options{Destdir: "/d", Prefix: "/usr"}
	a := plan(t, newConfig(), "aarch64-apple-darwin", opts, Sources{Crate: crate})
	b := plan(t, newConfig(), "aarch64-apple-darwin", opts, Sources{Crate: crate})
	if !reflect.DeepEqual(a, b) {
		t.Errorf("plans differ:\n%+v\n%+v", a, b)
	}
}

func TestMatchInvalid(t *testing.T) {
	for _, pattern := range []string{"../outside/*", "/abs/*", "a/[b"} {
		if _, err := Match(fstest.MapFS{}, pattern, "x"); err == nil {
			t.Errorf("Match(%q) should fail", pattern)
		}
	}
}

func TestMatch(t *testing.T) {
	fsys := fstest.MapFS{
		"assets/a/x.h":          {Data: []byte("x")},
		"assets/b/y.h":          {Data: []byte("y")},
		"assets/inc1/sub/y.h":   {Data: []byte("y")},
		"assets/inc2/z.h":       {Data: []byte("z")},
		"assets/top.h":          {Data: []byte("t")},
		"docs/guide/index.html": {Data: []byte("g")},
	}
	tests := []struct {
		pattern string
		want    [][2]string
	}{
		{"assets/*/x.h", [][2]string{{"assets/a/x.h", "foo/a/x.h"}}},
		{"assets/inc*/**/*.h", [][2]string{
			{"assets/inc1/sub/y.h", "foo/inc1/sub/y.h"},
			{"assets/inc2/z.h", "foo/inc2/z.h"},
		}},
		{"assets/*.h", [][2]string{{"assets/top.h", "foo/top.h"}}},
		{"docs/**/*", [][2]string{{"docs/guide/index.html", "foo/guide/index.html"}}},
		{"**/y.h", [][2]string{
			{"assets/b/y.h", "foo/assets/b/y.h"},
			{"assets/inc1/sub/y.h", "foo/assets/inc1/sub/y.h"},
		}},
		{"docs/guide", [][2]string{{"docs/guide/index.html", "foo/index.html"}}},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := Match(fsys, tt.pattern, "foo")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Match(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}
