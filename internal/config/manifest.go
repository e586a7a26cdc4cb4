package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ManifestFile is the package-description file read from a crate root.
const ManifestFile = "Cargo.toml"

// PackageMetadata is the crate-level metadata, immutable once read.
type PackageMetadata struct {
	Name        string
	LibName     string // [lib].name, empty when the manifest does not set it
	Version     string
	Description string
	License     string

	Requires        []string
	RequiresPrivate []string
}

// CrateName returns the name the library target is compiled under.
func (m PackageMetadata) CrateName() string {
	if m.LibName != "" {
		return m.LibName
	}
	return strings.ReplaceAll(m.Name, "-", "_")
}

// Overrides is the [package.metadata.capi] table. Every field is optional;
// nil means "not set" and lets the resolver fall back to crate metadata.
type Overrides struct {
	MinVersion *string            `toml:"min_version"`
	HeaderName *string            `toml:"header_name"`
	Header     *HeaderOverrides   `toml:"header"`
	PkgConfig  *PkgConfigOverrides `toml:"pkg_config"`
	Library    *LibraryOverrides  `toml:"library"`
	Install    *InstallOverrides  `toml:"install"`
}

// HeaderOverrides is [package.metadata.capi.header].
type HeaderOverrides struct {
	Name *string `toml:"name"`
	// Subdirectory is either a bool or a string; see Subdir.
	Subdirectory any   `toml:"subdirectory"`
	Generation   *bool `toml:"generation"`
	Enabled      *bool `toml:"enabled"`
}

// Subdir decodes the subdirectory override. set is false when the key is
// absent; a false boolean yields ("", true, nil) and true yields
// (fallback, true, nil).
func (h *HeaderOverrides) Subdir(fallback string) (dir string, set bool, err error) {
	if h == nil || h.Subdirectory == nil {
		return "", false, nil
	}
	switch v := h.Subdirectory.(type) {
	case bool:
		if v {
			return fallback, true, nil
		}
		return "", true, nil
	case string:
		return v, true, nil
	}
	return "", false, fmt.Errorf("expected a string or a boolean, got %T", h.Subdirectory)
}

// PkgConfigOverrides is [package.metadata.capi.pkg_config].
type PkgConfigOverrides struct {
	Name                       *string `toml:"name"`
	Filename                   *string `toml:"filename"`
	Description                *string `toml:"description"`
	Version                    *string `toml:"version"`
	Requires                   *string `toml:"requires"`
	RequiresPrivate            *string `toml:"requires_private"`
	StripIncludePathComponents *int    `toml:"strip_include_path_components"`
}

// LibraryOverrides is [package.metadata.capi.library].
type LibraryOverrides struct {
	Name                    *string `toml:"name"`
	Version                 *string `toml:"version"`
	InstallSubdir           *string `toml:"install_subdir"`
	Versioning              *bool   `toml:"versioning"`
	VersionSuffixComponents *int    `toml:"version_suffix_components"`
	Rustflags               *string `toml:"rustflags"`
	ImportLibrary           *bool   `toml:"import_library"`
}

// InstallOverrides is [package.metadata.capi.install].
type InstallOverrides struct {
	Include *TargetOverrides `toml:"include"`
	Data    *TargetOverrides `toml:"data"`
}

// TargetOverrides lists extra {from, to} install rules, split by where the
// from pattern is rooted.
type TargetOverrides struct {
	Asset     []PathOverride `toml:"asset"`
	Generated []PathOverride `toml:"generated"`
}

// PathOverride is a single {from, to} rule.
type PathOverride struct {
	From string  `toml:"from"`
	To   *string `toml:"to"`
}

// Manifest is a parsed Cargo.toml.
type Manifest struct {
	Dir     string // directory holding the manifest
	Package PackageMetadata
	Capi    *Overrides // nil when the manifest has no capi table
}

type cargoToml struct {
	Package struct {
		Name        string `toml:"name"`
		Version     string `toml:"version"`
		Description string `toml:"description"`
		License     string `toml:"license"`
		Metadata    struct {
			Capi *Overrides `toml:"capi"`
		} `toml:"metadata"`
	} `toml:"package"`
	Lib struct {
		Name string `toml:"name"`
	} `toml:"lib"`
}

// ParseManifest reads a manifest. When data is nil the file is read from disk.
// Unknown keys are ignored; a known key with the wrong type is a
// Malformed ConfigError.
func ParseManifest(file string, data []byte) (*Manifest, error) {
	var reader io.Reader

	if data != nil {
		reader = bytes.NewReader(data)
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader = f
	}

	var raw cargoToml
	if err := toml.NewDecoder(reader).Decode(&raw); err != nil {
		return nil, newError(Malformed, file, err)
	}
	if raw.Package.Name == "" {
		return nil, newError(Malformed, "package.name", fmt.Errorf("missing"))
	}
	if raw.Package.Version == "" {
		return nil, newError(Malformed, "package.version", fmt.Errorf("missing"))
	}

	m := &Manifest{
		Dir: filepath.Dir(file),
		Package: PackageMetadata{
			Name:        raw.Package.Name,
			LibName:     raw.Lib.Name,
			Version:     raw.Package.Version,
			Description: raw.Package.Description,
			License:     raw.Package.License,
		},
		Capi: raw.Package.Metadata.Capi,
	}
	if err := m.Capi.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (o *Overrides) validate() error {
	if o == nil {
		return nil
	}
	if _, _, err := o.Header.Subdir(""); err != nil {
		return newError(Malformed, "package.metadata.capi.header.subdirectory", err)
	}
	if o.Install != nil {
		sections := []struct {
			name string
			t    *TargetOverrides
		}{{"include", o.Install.Include}, {"data", o.Install.Data}}
		for _, s := range sections {
			if s.t == nil {
				continue
			}
			for _, p := range append(append([]PathOverride{}, s.t.Asset...), s.t.Generated...) {
				if p.From == "" {
					return newError(Malformed, "package.metadata.capi.install."+s.name, fmt.Errorf("a from field is required"))
				}
			}
		}
	}
	return nil
}
