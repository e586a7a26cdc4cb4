package config

import "fmt"

// ErrorKind classifies a ConfigError.
type ErrorKind int

const (
	// Malformed reports a manifest key with the wrong type or an invalid value.
	Malformed ErrorKind = iota
	// InvalidVersion reports a version string that is not major.minor.patch.
	InvalidVersion
	// UnsupportedToolVersion reports a min_version newer than the running tool.
	UnsupportedToolVersion
	// VersionSuffixTooLong reports version_suffix_components exceeding the
	// number of numeric version components.
	VersionSuffixTooLong
)

func (k ErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed manifest"
	case InvalidVersion:
		return "invalid version"
	case UnsupportedToolVersion:
		return "unsupported tool version"
	case VersionSuffixTooLong:
		return "version suffix too long"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ConfigError is a user-fixable problem with the manifest or its overrides.
// It is always fatal and is reported before any external process runs.
type ConfigError struct {
	Kind ErrorKind
	Key  string // manifest key, e.g. "package.metadata.capi.library.version"
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, key string, err error) *ConfigError {
	return &ConfigError{Kind: kind, Key: key, Err: err}
}
