package target

import (
	"fmt"
	"strings"
)

// Family is the object-format family a target's libraries follow.
type Family int

const (
	Linux   Family = iota // ELF, lib<name>.so
	BSD                   // ELF, lib<name>.so
	MacOS                 // Mach-O, lib<name>.dylib
	Windows               // PE, <name>.dll
)

func (f Family) String() string {
	switch f {
	case Linux:
		return "linux"
	case BSD:
		return "bsd"
	case MacOS:
		return "macos"
	case Windows:
		return "windows"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ELF reports whether the family uses ELF shared objects.
func (f Family) ELF() bool {
	return f == Linux || f == BSD
}

// ABI is the C library / toolchain environment of a target.
type ABI string

const (
	ABINone ABI = ""
	GNU     ABI = "gnu"
	Musl    ABI = "musl"
	MSVC    ABI = "msvc"
)

// Platform describes the target a library is packaged for.
type Platform struct {
	Triple string
	Arch   string // first triple component, e.g. x86_64
	OS     string // operating system component, e.g. linux, freebsd, darwin
	Env    string // raw environment component, e.g. gnueabihf
	Family Family
	ABI    ABI

	// DynamicLibraries is false for targets that cannot produce shared
	// libraries by default (bare metal, musl).
	DynamicLibraries bool

	// Explicit is set when the target was requested on the command line
	// rather than defaulted to the host.
	Explicit bool

	// Multiarch is set on hosts following the Debian multiarch convention;
	// ArchTriplet is then the DEB_HOST_MULTIARCH value.
	Multiarch   bool
	ArchTriplet string

	// Lib64 is set on native builds for hosts with a real /usr/lib64.
	Lib64 bool
}

func (p *Platform) String() string {
	return p.Triple
}

var osFamilies = map[string]Family{
	"linux":      Linux,
	"android":    Linux,
	"emscripten": Linux,
	"haiku":      Linux,
	"illumos":    Linux,
	"hurd":       Linux,
	"none":       Linux,
	"freebsd":    BSD,
	"dragonfly":  BSD,
	"netbsd":     BSD,
	"openbsd":    BSD,
	"darwin":     MacOS,
	"macos":      MacOS,
	"ios":        MacOS,
	"tvos":       MacOS,
	"visionos":   MacOS,
	"windows":    Windows,
}

// osPriority picks the more specific OS when a triple names two, as in
// aarch64-linux-android.
var osPriority = []string{"android", "emscripten"}

// Parse splits a target triple into a Platform. Host-dependent fields
// (Multiarch, Lib64, Explicit) are left unset; see Detect.
func Parse(triple string) (*Platform, error) {
	parts := strings.Split(triple, "-")
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("invalid target triple %q", triple)
	}

	p := &Platform{Triple: triple, Arch: parts[0]}
	rest := parts[1:]
	for _, name := range osPriority {
		for _, c := range rest {
			if c == name {
				p.OS = name
			}
		}
	}
	if p.OS == "" {
		for _, c := range rest {
			if _, ok := osFamilies[c]; ok {
				p.OS = c
				break
			}
		}
	}
	if p.OS == "" {
		return nil, fmt.Errorf("target %s is not supported yet", triple)
	}
	p.Family = osFamilies[p.OS]

	if last := parts[len(parts)-1]; last != p.OS {
		p.Env = last
	}
	switch {
	case strings.HasPrefix(p.Env, "musl"):
		p.ABI = Musl
	case strings.HasPrefix(p.Env, "msvc"):
		p.ABI = MSVC
	case strings.HasPrefix(p.Env, "gnu"):
		p.ABI = GNU
	}
	if p.Family == Windows && p.ABI == ABINone {
		return nil, fmt.Errorf("target %s: windows targets need a gnu or msvc environment", triple)
	}

	p.DynamicLibraries = p.OS != "none" && p.ABI != Musl
	if p.Family == Linux && (p.ABI == GNU || p.ABI == Musl) && p.OS == "linux" {
		p.ArchTriplet = debianArch(p.Arch) + "-linux-" + p.Env
	}
	return p, nil
}

// debianArch maps a triple architecture to the one used in Debian
// multiarch triplets.
func debianArch(arch string) string {
	switch {
	case arch == "i586" || arch == "i686":
		return "i386"
	case strings.HasPrefix(arch, "armv7"), strings.HasPrefix(arch, "armv6"), strings.HasPrefix(arch, "armv5"):
		return "arm"
	case arch == "riscv64gc":
		return "riscv64"
	}
	return arch
}

// DefaultPrefix returns the conventional installation prefix.
func (p *Platform) DefaultPrefix() string {
	switch {
	case p.Family == Windows:
		return "c:/"
	case p.OS == "haiku":
		return "/boot/system/non-packaged"
	}
	return "/usr/local"
}

// DefaultIncludedir returns the include directory relative to the prefix.
func (p *Platform) DefaultIncludedir() string {
	if p.OS == "haiku" {
		return "develop/headers"
	}
	return "include"
}

// DefaultDatadir returns the data root directory relative to the prefix.
func (p *Platform) DefaultDatadir() string {
	if p.OS == "haiku" {
		return "data"
	}
	return "share"
}

// DefaultBindir returns the binary directory relative to the prefix.
func (p *Platform) DefaultBindir() string {
	return "bin"
}
