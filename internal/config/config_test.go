package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/goplus/capi/internal/version"
)

var toolVersion = version.MustParse("0.10.0")

func mustResolve(t *testing.T, manifest string) *Resolved {
	t.Helper()
	m, err := ParseManifest("Cargo.toml", []byte(manifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	cfg, err := Resolve(m.Package, m.Capi, toolVersion)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return cfg
}

func resolveErr(t *testing.T, manifest string) *ConfigError {
	t.Helper()
	m, err := ParseManifest("Cargo.toml", []byte(manifest))
	if err == nil {
		_, err = Resolve(m.Package, m.Capi, toolVersion)
	}
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("error %v is not a *ConfigError", err)
	}
	return cerr
}

func TestResolveDefaults(t *testing.T) {
	cfg := mustResolve(t, `
[package]
name = "example-project"
version = "0.1.0"
description = "Example project"
license = "MIT"
`)

	if cfg.CrateName != "example_project" {
		t.Errorf("CrateName = %q, want %q", cfg.CrateName, "example_project")
	}
	if cfg.Library.Name != "example_project" {
		t.Errorf("Library.Name = %q", cfg.Library.Name)
	}
	if !cfg.Library.Versioning || !cfg.Library.ImportLibrary {
		t.Errorf("Library defaults = %+v, want versioning and import_library on", cfg.Library)
	}
	if cfg.Library.Version != version.MustParse("0.1.0") {
		t.Errorf("Library.Version = %v", cfg.Library.Version)
	}
	want := HeaderConfig{Name: "example_project", Subdirectory: "example_project", Generation: true, Enabled: true}
	if cfg.Header != want {
		t.Errorf("Header = %+v, want %+v", cfg.Header, want)
	}
	if cfg.PkgConfig.Name != "example_project" || cfg.PkgConfig.Filename != "example_project" {
		t.Errorf("PkgConfig name/filename = %q/%q", cfg.PkgConfig.Name, cfg.PkgConfig.Filename)
	}
	if cfg.PkgConfig.Description != "Example project" || cfg.PkgConfig.Version != "0.1.0" {
		t.Errorf("PkgConfig description/version = %q/%q", cfg.PkgConfig.Description, cfg.PkgConfig.Version)
	}
	if len(cfg.Install.Include) != 2 || cfg.Install.Include[0].From != DefaultAssetInclude || !cfg.Install.Include[1].Generated {
		t.Errorf("Install.Include = %+v", cfg.Install.Include)
	}
}

func TestResolvePerFieldDefaulting(t *testing.T) {
	cfg := mustResolve(t, `
[package]
name = "foo"
version = "1.2.3"
description = "crate description"

[package.metadata.capi.pkg_config]
name = "libfoo"
requires = "glib-2.0, gobject-2.0 >= 2.50"
requires_private = "zlib"
strip_include_path_components = 1

[package.metadata.capi.library]
name = "bar"
`)

	pc := cfg.PkgConfig
	if pc.Name != "libfoo" {
		t.Errorf("Name = %q, want override", pc.Name)
	}
	if pc.Version != "1.2.3" || pc.Description != "crate description" {
		t.Errorf("Version/Description = %q/%q, want crate defaults", pc.Version, pc.Description)
	}
	if pc.Filename != "bar" {
		t.Errorf("Filename = %q, want resolved library name", pc.Filename)
	}
	if want := []string{"glib-2.0", "gobject-2.0 >= 2.50"}; !reflect.DeepEqual(pc.Requires, want) {
		t.Errorf("Requires = %q, want %q", pc.Requires, want)
	}
	if want := []string{"zlib"}; !reflect.DeepEqual(pc.RequiresPrivate, want) {
		t.Errorf("RequiresPrivate = %q, want %q", pc.RequiresPrivate, want)
	}
	if pc.StripIncludePathComponents != 1 {
		t.Errorf("StripIncludePathComponents = %d", pc.StripIncludePathComponents)
	}
	if cfg.Header.Subdirectory != "bar" {
		t.Errorf("Header.Subdirectory = %q, want library name", cfg.Header.Subdirectory)
	}
}

func TestResolveHeaderSubdirectory(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"false", `false`, ""},
		{"true", `true`, "foo"},
		{"string", `"foo-2.0/bar"`, "foo-2.0/bar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustResolve(t, `
[package]
name = "foo"
version = "2.0.0"

[package.metadata.capi.header]
subdirectory = `+tt.value+`
`)
			if cfg.Header.Subdirectory != tt.want {
				t.Errorf("Subdirectory = %q, want %q", cfg.Header.Subdirectory, tt.want)
			}
			if cfg.Install.Include[0].To != tt.want {
				t.Errorf("default include target To = %q, want %q", cfg.Install.Include[0].To, tt.want)
			}
		})
	}
}

func TestResolveLibraryOverrides(t *testing.T) {
	cfg := mustResolve(t, `
[package]
name = "foo"
version = "1.2.3"

[package.metadata.capi]
header_name = "legacy"

[package.metadata.capi.library]
version = "2.0.0"
install_subdir = "gstreamer-1.0"
versioning = false
version_suffix_components = 2
rustflags = "-Cpanic=abort  -Copt-level=3"
import_library = false

[package.metadata.capi.install.data]
asset = [{ from = "pattern/*.txt" }]
generated = [{ from = "gen/**/*", to = "out" }]
`)

	lib := cfg.Library
	if lib.Version != version.MustParse("2.0.0") {
		t.Errorf("Version = %v", lib.Version)
	}
	if lib.InstallSubdir != "gstreamer-1.0" || lib.Versioning || lib.ImportLibrary {
		t.Errorf("Library = %+v", lib)
	}
	if want := []string{"-Cpanic=abort", "-Copt-level=3"}; !reflect.DeepEqual(lib.Rustflags, want) {
		t.Errorf("Rustflags = %q, want %q", lib.Rustflags, want)
	}
	if sover, err := lib.Sover(); err != nil || sover != "2.0" {
		t.Errorf("Sover() = %q, %v, want 2.0", sover, err)
	}
	if cfg.Header.Name != "legacy" {
		t.Errorf("Header.Name = %q, want legacy header_name", cfg.Header.Name)
	}
	data := cfg.Install.Data[2:]
	want := []InstallTarget{
		{From: "pattern/*.txt", To: "foo"},
		{From: "gen/**/*", To: "out", Generated: true},
	}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("Install.Data = %+v, want %+v", data, want)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		kind     ErrorKind
	}{
		{
			name: "min version newer than tool",
			manifest: `
[package]
name = "foo"
version = "1.0.0"
[package.metadata.capi]
min_version = "99.0.0"
`,
			kind: UnsupportedToolVersion,
		},
		{
			name: "unparsable crate version",
			manifest: `
[package]
name = "foo"
version = "1.0"
`,
			kind: InvalidVersion,
		},
		{
			name: "unparsable library version",
			manifest: `
[package]
name = "foo"
version = "1.0.0"
[package.metadata.capi.library]
version = "one"
`,
			kind: InvalidVersion,
		},
		{
			name: "suffix longer than version",
			manifest: `
[package]
name = "foo"
version = "1.0.0"
[package.metadata.capi.library]
version_suffix_components = 4
`,
			kind: VersionSuffixTooLong,
		},
		{
			name: "wrong type for known key",
			manifest: `
[package]
name = "foo"
version = "1.0.0"
[package.metadata.capi.library]
versioning = "yes"
`,
			kind: Malformed,
		},
		{
			name: "subdirectory of wrong type",
			manifest: `
[package]
name = "foo"
version = "1.0.0"
[package.metadata.capi.header]
subdirectory = 3
`,
			kind: Malformed,
		},
		{
			name: "install rule without from",
			manifest: `
[package]
name = "foo"
version = "1.0.0"
[package.metadata.capi.install.include]
asset = [{ to = "x" }]
`,
			kind: Malformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := resolveErr(t, tt.manifest); err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v (err: %v)", err.Kind, tt.kind, err)
			}
		})
	}
}

func TestUnknownKeysIgnored(t *testing.T) {
	cfg := mustResolve(t, `
[package]
name = "foo"
version = "1.0.0"
edition = "2021"

[package.metadata.docs.rs]
all-features = true

[package.metadata.capi]
future_option = { nested = 1 }

[package.metadata.capi.library]
brand_new_key = "x"
`)
	if cfg.Library.Name != "foo" {
		t.Errorf("Library.Name = %q", cfg.Library.Name)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ManifestFile)
	content := "[package]\nname = \"foo\"\nversion = \"0.3.1\"\n\n[lib]\nname = \"foolib\"\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	m, cfg, err := Load(file, toolVersion)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Dir != dir {
		t.Errorf("Dir = %q, want %q", m.Dir, dir)
	}
	if cfg.Library.Name != "foolib" {
		t.Errorf("Library.Name = %q, want [lib] name", cfg.Library.Name)
	}
	if sover, _ := cfg.Library.Sover(); sover != "0.3" {
		t.Errorf("Sover() = %q, want 0.3", sover)
	}
}
