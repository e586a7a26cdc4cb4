package naming

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/target"
)

// LinkArgs returns the linker arguments that embed the library identity in a
// shared build: the ELF SONAME, the Mach-O install name, or the windows-gnu
// module definition output. libdir is the final install location (without
// destdir), targetDir the build output directory.
func LinkArgs(cfg *config.Resolved, p *target.Platform, libdir, targetDir string) ([]string, error) {
	lib := cfg.Library
	var sover string
	if lib.Versioning {
		var err error
		if sover, err = lib.Sover(); err != nil {
			return nil, err
		}
	}

	switch {
	case p.OS == "android":
		return []string{"-Wl,-soname,lib" + lib.Name + ".so"}, nil
	case p.OS == "emscripten" || p.OS == "none":
		return nil, nil
	case p.Family.ELF():
		if !lib.Versioning {
			return []string{"-Wl,-soname,lib" + lib.Name + ".so"}, nil
		}
		return []string{"-Wl,-soname," + versioned(lib.Name, sover, p)}, nil
	case p.Family == target.MacOS:
		installName := path.Join(libdir, "lib"+lib.Name+".dylib")
		arg := "-Wl,-install_name," + installName
		if lib.Versioning {
			v := lib.Version
			arg = fmt.Sprintf("-Wl,-install_name,%s,-current_version,%d.%d.%d,-compatibility_version,%s",
				path.Join(libdir, versioned(lib.Name, sover, p)), v.Major, v.Minor, v.Patch, sover)
		}
		return []string{arg, "-Wl,-headerpad_max_install_names"}, nil
	case p.Family == target.Windows && p.ABI == target.GNU:
		def := FileNames(lib.Name, p).Def
		return []string{"-Wl,--output-def," + filepath.Join(targetDir, def)}, nil
	}
	return nil, nil
}
