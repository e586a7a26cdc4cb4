package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goplus/capi/internal/version"
)

// Default include and data patterns, relative to the crate root (assets) or
// the build script output directory (generated).
const (
	DefaultAssetInclude     = "assets/capi/include/**/*"
	DefaultGeneratedInclude = "capi/include/**/*"
	DefaultAssetData        = "assets/capi/share/**/*"
	DefaultGeneratedData    = "capi/share/**/*"
)

// Resolved is the merged configuration for one build invocation. Every field
// has exactly one authoritative value; it is read-only after Resolve returns.
type Resolved struct {
	PackageName string
	CrateName   string
	Version     version.Version
	License     string

	Header    HeaderConfig
	PkgConfig PkgConfigConfig
	Library   LibraryConfig
	Install   InstallConfig
}

// HeaderConfig controls the C header.
type HeaderConfig struct {
	Name         string // without the .h extension
	Subdirectory string // empty installs directly under includedir
	Generation   bool   // false copies assets/<Name>.h instead of generating
	Enabled      bool
}

// FileName returns the header file name.
func (h HeaderConfig) FileName() string {
	return h.Name + ".h"
}

// PkgConfigConfig controls the .pc descriptor.
type PkgConfigConfig struct {
	Name                       string
	Filename                   string // without the .pc extension
	Description                string
	Version                    string
	Requires                   []string
	RequiresPrivate            []string
	StripIncludePathComponents int
}

// LibraryConfig controls library naming and linking.
type LibraryConfig struct {
	Name                    string
	Version                 version.Version
	InstallSubdir           string
	Versioning              bool
	VersionSuffixComponents int // 0 selects the default soname policy
	Rustflags               []string
	ImportLibrary           bool
}

// Sover returns the version embedded in the SONAME.
func (l LibraryConfig) Sover() (string, error) {
	if l.VersionSuffixComponents == 0 {
		return l.Version.SonameVersion(), nil
	}
	s, err := l.Version.Suffix(l.VersionSuffixComponents)
	if err != nil {
		kind := Malformed
		if errors.Is(err, version.ErrSuffixTooLong) {
			kind = VersionSuffixTooLong
		}
		return "", newError(kind, "package.metadata.capi.library.version_suffix_components", err)
	}
	return s, nil
}

// InstallTarget is a {from, to} copy rule. From is a glob; Generated rules
// are rooted at the build output directory, asset rules at the crate root.
type InstallTarget struct {
	From      string
	To        string
	Generated bool
}

// InstallConfig lists extra files to install.
type InstallConfig struct {
	Include []InstallTarget
	Data    []InstallTarget
}

// Load parses the manifest at file and resolves it.
func Load(file string, toolVersion version.Version) (*Manifest, *Resolved, error) {
	m, err := ParseManifest(file, nil)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := Resolve(m.Package, m.Capi, toolVersion)
	if err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

// Resolve merges crate metadata with capi overrides. Defaulting is per field:
// an override wins, otherwise the crate metadata value, otherwise the global
// default. Resolve performs no I/O.
func Resolve(meta PackageMetadata, ov *Overrides, toolVersion version.Version) (*Resolved, error) {
	if ov == nil {
		ov = &Overrides{}
	}
	if ov.MinVersion != nil {
		minVer, err := version.Parse(*ov.MinVersion)
		if err != nil {
			return nil, newError(InvalidVersion, "package.metadata.capi.min_version", err)
		}
		if version.Compare(minVer, toolVersion) > 0 {
			return nil, newError(UnsupportedToolVersion, "package.metadata.capi.min_version",
				fmt.Errorf("minimum required version is %s but running %s", minVer, toolVersion))
		}
	}

	crateVersion, err := version.Parse(meta.Version)
	if err != nil {
		return nil, newError(InvalidVersion, "package.version", err)
	}

	name := meta.CrateName()
	cfg := &Resolved{
		PackageName: meta.Name,
		CrateName:   name,
		Version:     crateVersion,
		License:     meta.License,
	}

	lib, err := resolveLibrary(name, crateVersion, ov.Library)
	if err != nil {
		return nil, err
	}
	cfg.Library = lib

	cfg.Header, err = resolveHeader(name, lib.Name, ov)
	if err != nil {
		return nil, err
	}

	cfg.PkgConfig, err = resolvePkgConfig(name, lib.Name, meta, ov.PkgConfig)
	if err != nil {
		return nil, err
	}

	cfg.Install = resolveInstall(name, cfg.Header.Subdirectory, ov.Install)
	return cfg, nil
}

func resolveLibrary(name string, crateVersion version.Version, ov *LibraryOverrides) (LibraryConfig, error) {
	lib := LibraryConfig{
		Name:          name,
		Version:       crateVersion,
		Versioning:    true,
		ImportLibrary: true,
	}
	if ov == nil {
		return lib, nil
	}
	lib.Name = or(ov.Name, lib.Name)
	if ov.Version != nil {
		v, err := version.Parse(*ov.Version)
		if err != nil {
			return lib, newError(InvalidVersion, "package.metadata.capi.library.version", err)
		}
		lib.Version = v
	}
	lib.InstallSubdir = or(ov.InstallSubdir, "")
	lib.Versioning = or(ov.Versioning, true)
	lib.ImportLibrary = or(ov.ImportLibrary, true)
	if ov.Rustflags != nil {
		lib.Rustflags = strings.Fields(*ov.Rustflags)
	}
	if ov.VersionSuffixComponents != nil {
		lib.VersionSuffixComponents = *ov.VersionSuffixComponents
		if lib.VersionSuffixComponents < 1 {
			return lib, newError(Malformed, "package.metadata.capi.library.version_suffix_components",
				fmt.Errorf("must be at least 1, got %d", lib.VersionSuffixComponents))
		}
		if _, err := lib.Sover(); err != nil {
			return lib, err
		}
	}
	return lib, nil
}

func resolveHeader(name, libName string, ov *Overrides) (HeaderConfig, error) {
	h := HeaderConfig{
		Name:         or(ov.HeaderName, name),
		Subdirectory: libName,
		Generation:   true,
		Enabled:      true,
	}
	if ov.Header == nil {
		return h, nil
	}
	h.Name = or(ov.Header.Name, h.Name)
	dir, set, err := ov.Header.Subdir(libName)
	if err != nil {
		return h, newError(Malformed, "package.metadata.capi.header.subdirectory", err)
	}
	if set {
		h.Subdirectory = dir
	}
	h.Generation = or(ov.Header.Generation, true)
	h.Enabled = or(ov.Header.Enabled, true)
	return h, nil
}

func resolvePkgConfig(name, libName string, meta PackageMetadata, ov *PkgConfigOverrides) (PkgConfigConfig, error) {
	pc := PkgConfigConfig{
		Name:            name,
		Filename:        libName,
		Description:     meta.Description,
		Version:         meta.Version,
		Requires:        meta.Requires,
		RequiresPrivate: meta.RequiresPrivate,
	}
	if ov == nil {
		return pc, nil
	}
	pc.Name = or(ov.Name, pc.Name)
	pc.Filename = or(ov.Filename, pc.Filename)
	pc.Description = or(ov.Description, pc.Description)
	pc.Version = or(ov.Version, pc.Version)
	if ov.Requires != nil {
		pc.Requires = splitList(*ov.Requires)
	}
	if ov.RequiresPrivate != nil {
		pc.RequiresPrivate = splitList(*ov.RequiresPrivate)
	}
	pc.StripIncludePathComponents = or(ov.StripIncludePathComponents, 0)
	if pc.StripIncludePathComponents < 0 {
		return pc, newError(Malformed, "package.metadata.capi.pkg_config.strip_include_path_components",
			fmt.Errorf("must not be negative, got %d", pc.StripIncludePathComponents))
	}
	return pc, nil
}

func resolveInstall(name, subdir string, ov *InstallOverrides) InstallConfig {
	in := InstallConfig{
		Include: []InstallTarget{
			{From: DefaultAssetInclude, To: subdir},
			{From: DefaultGeneratedInclude, To: subdir, Generated: true},
		},
		Data: []InstallTarget{
			{From: DefaultAssetData, To: name},
			{From: DefaultGeneratedData, To: name, Generated: true},
		},
	}
	if ov == nil {
		return in
	}
	in.Include = appendTargets(in.Include, ov.Include, subdir)
	in.Data = appendTargets(in.Data, ov.Data, name)
	return in
}

func appendTargets(dst []InstallTarget, ov *TargetOverrides, defaultTo string) []InstallTarget {
	if ov == nil {
		return dst
	}
	for _, p := range ov.Asset {
		dst = append(dst, InstallTarget{From: p.From, To: or(p.To, defaultTo)})
	}
	for _, p := range ov.Generated {
		dst = append(dst, InstallTarget{From: p.From, To: or(p.To, defaultTo), Generated: true})
	}
	return dst
}

// splitList splits a comma separated pkg-config requirement list. The
// grammar of each entry is not checked.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func or[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}
