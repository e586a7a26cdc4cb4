package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrSuffixTooLong is returned by Suffix when more components are requested
// than the version has.
var ErrSuffixTooLong = errors.New("version suffix has more components than the version")

// Version is a parsed major.minor.patch semantic version.
type Version struct {
	Major, Minor, Patch uint64
	Pre                 string // pre-release, without the leading '-'
	Build               string // build metadata, without the leading '+'
}

// Parse parses a semantic version of the form major.minor.patch with optional
// pre-release and build metadata. A leading "v" is not accepted: manifests
// carry bare versions.
func Parse(s string) (Version, error) {
	if s == "" || s[0] == 'v' || !semver.IsValid("v"+s) {
		return Version{}, fmt.Errorf("invalid semantic version %q", s)
	}
	core := s
	var v Version
	if i := strings.IndexByte(core, '+'); i >= 0 {
		v.Build = core[i+1:]
		core = core[:i]
	}
	if i := strings.IndexByte(core, '-'); i >= 0 {
		v.Pre = core[i+1:]
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	// semver.IsValid accepts the "v1" and "v1.2" shorthands; manifests may not.
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid semantic version %q: want major.minor.patch", s)
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("invalid semantic version %q: %w", s, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the canonical textual form, including pre-release and build.
func (v Version) String() string {
	s := v.Full()
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Full returns "major.minor.patch", the form used in library filenames.
func (v Version) Full() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// NumericComponents reports how many dotted numeric components the version has.
func (v Version) NumericComponents() int {
	return 3
}

// SonameVersion applies the default ABI policy: a major bump is breaking,
// and below 1.0 a minor bump is breaking, below 0.1 every patch is.
func (v Version) SonameVersion() string {
	switch {
	case v.Major > 0:
		return strconv.FormatUint(v.Major, 10)
	case v.Minor > 0:
		return "0." + strconv.FormatUint(v.Minor, 10)
	default:
		return "0.0." + strconv.FormatUint(v.Patch, 10)
	}
}

// Suffix returns the first n dotted components of the version, left to right.
func (v Version) Suffix(n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("version suffix must have at least one component, got %d", n)
	}
	if n > v.NumericComponents() {
		return "", fmt.Errorf("%w: %d > %d", ErrSuffixTooLong, n, v.NumericComponents())
	}
	comps := []uint64{v.Major, v.Minor, v.Patch}[:n]
	strs := make([]string, n)
	for i, c := range comps {
		strs[i] = strconv.FormatUint(c, 10)
	}
	return strings.Join(strs, "."), nil
}

// Compare returns -1, 0 or +1 following semantic version precedence.
func Compare(a, b Version) int {
	return semver.Compare("v"+a.String(), "v"+b.String())
}
