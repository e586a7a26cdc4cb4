package naming

import (
	"fmt"

	"github.com/goplus/capi/internal/classify"
	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/target"
)

// Kind classifies a planned library file.
type Kind int

const (
	StaticLib Kind = iota
	SharedLib
	SharedLink // a symlink in the shared library version chain
	ImportLib
	DefFile   // module definition file accompanying a windows import library
	DebugInfo // separate debug information, a file or a directory
)

func (k Kind) String() string {
	switch k {
	case StaticLib:
		return "static"
	case SharedLib:
		return "shared"
	case SharedLink:
		return "shared-versioned-link"
	case ImportLib:
		return "import"
	case DefFile:
		return "def"
	case DebugInfo:
		return "debug-info"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Dir is the base installation directory of an artifact.
type Dir int

const (
	LibDir Dir = iota
	BinDir
)

func (d Dir) String() string {
	if d == BinDir {
		return "bindir"
	}
	return "libdir"
}

// Artifact is one planned library file or link.
type Artifact struct {
	Kind     Kind
	Filename string
	// Source is the file in the build directory the artifact is copied
	// from. Empty for links.
	Source string
	Dir    Dir
	Subdir string // below Dir, from library.install_subdir
	// LinkTarget is the filename a SharedLink points to, relative to the
	// link's own directory. A link never owns its target.
	LinkTarget string
}

// IsLink reports whether a is a symlink rather than a real file.
func (a Artifact) IsLink() bool {
	return a.LinkTarget != ""
}

// Names holds the unversioned file names of a library on one platform.
// Import, Def and Debug are empty where the platform has none.
type Names struct {
	Static string
	Shared string
	Import string
	Def    string
	Debug  string
}

// FileNames returns the file names of library name on p.
func FileNames(name string, p *target.Platform) Names {
	switch {
	case p.Family == target.MacOS:
		return Names{Static: "lib" + name + ".a", Shared: "lib" + name + ".dylib"}
	case p.Family == target.Windows && p.ABI == target.MSVC:
		return Names{
			Static: name + ".lib",
			Shared: name + ".dll",
			Import: name + ".dll.lib",
			Def:    name + ".def",
			Debug:  name + ".pdb",
		}
	case p.Family == target.Windows:
		return Names{
			Static: "lib" + name + ".a",
			Shared: name + ".dll",
			Import: "lib" + name + ".dll.a",
			Def:    name + ".def",
		}
	}
	return Names{Static: "lib" + name + ".a", Shared: "lib" + name + ".so"}
}

// versioned returns the shared library file name carrying ver.
func versioned(name, ver string, p *target.Platform) string {
	if p.Family == target.MacOS {
		return "lib" + name + "." + ver + ".dylib"
	}
	return "lib" + name + ".so." + ver
}

// Plan returns the library artifacts for the feasible kinds, static first.
// Real files always precede the links pointing at them.
func Plan(cfg *config.Resolved, p *target.Platform, feasible []classify.Kind) ([]Artifact, error) {
	lib := cfg.Library
	names := FileNames(lib.Name, p)
	var arts []Artifact
	for _, k := range feasible {
		switch k {
		case classify.Static:
			arts = append(arts, Artifact{
				Kind:     StaticLib,
				Filename: names.Static,
				Source:   names.Static,
				Subdir:   lib.InstallSubdir,
			})
		case classify.Shared:
			shared, err := planShared(lib, names, p)
			if err != nil {
				return nil, err
			}
			arts = append(arts, shared...)
		default:
			return nil, fmt.Errorf("unknown library kind %q", k)
		}
	}
	return arts, nil
}

func planShared(lib config.LibraryConfig, names Names, p *target.Platform) ([]Artifact, error) {
	if p.Family == target.Windows {
		dll := Artifact{Kind: SharedLib, Filename: names.Shared, Source: names.Shared, Dir: BinDir}
		if lib.InstallSubdir != "" {
			// plugins live next to the other libraries
			dll.Dir, dll.Subdir = LibDir, lib.InstallSubdir
		}
		arts := []Artifact{dll}
		if lib.ImportLibrary {
			arts = append(arts, Artifact{Kind: ImportLib, Filename: names.Import, Source: names.Import, Subdir: lib.InstallSubdir})
			arts = append(arts, Artifact{Kind: DefFile, Filename: names.Def, Source: names.Def, Subdir: lib.InstallSubdir})
		}
		if names.Debug != "" {
			// installed only if the build produced it
			arts = append(arts, Artifact{Kind: DebugInfo, Filename: names.Debug, Source: names.Debug, Dir: dll.Dir, Subdir: dll.Subdir})
		}
		return arts, nil
	}

	bare := Artifact{Kind: SharedLib, Filename: names.Shared, Source: names.Shared, Subdir: lib.InstallSubdir}
	if !lib.Versioning {
		return []Artifact{bare}, nil
	}
	sover, err := lib.Sover()
	if err != nil {
		return nil, err
	}
	full := versioned(lib.Name, lib.Version.Full(), p)
	soname := versioned(lib.Name, sover, p)

	arts := []Artifact{{Kind: SharedLib, Filename: full, Source: names.Shared, Subdir: lib.InstallSubdir}}
	if soname != full {
		arts = append(arts, Artifact{Kind: SharedLink, Filename: soname, Subdir: lib.InstallSubdir, LinkTarget: full})
	}
	arts = append(arts, Artifact{Kind: SharedLink, Filename: names.Shared, Subdir: lib.InstallSubdir, LinkTarget: soname})
	return arts, nil
}

// Resolve follows the link chain from filename and returns the real file it
// ends at. It fails on a dangling link or a cycle.
func Resolve(arts []Artifact, filename string) (string, error) {
	byName := make(map[string]Artifact, len(arts))
	for _, a := range arts {
		byName[a.Filename] = a
	}
	for range len(arts) + 1 {
		a, ok := byName[filename]
		if !ok {
			return "", fmt.Errorf("%s is not a planned artifact", filename)
		}
		if !a.IsLink() {
			return a.Filename, nil
		}
		filename = a.LinkTarget
	}
	return "", fmt.Errorf("link cycle at %s", filename)
}
