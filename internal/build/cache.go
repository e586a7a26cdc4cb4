package build

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/capi/internal/layout"
)

// Build directory layout, next to the build tool's own outputs:
//
//	<build dir>/
//	  capi-<name>.cache          # fingerprint of the last packaging run
//	  <pc filename>.pc
//	  <pc filename>-uninstalled.pc
//	  include/<subdir>/<name>.h
//	  lib<name>.a, lib<name>.so, ...
const cachePrefix = "capi-"

// buildCache records what the last packaging run of a library produced.
type buildCache struct {
	Fingerprint string    `json:"fingerprint"`
	StaticLibs  []string  `json:"static_libs"`
	BuildTime   time.Time `json:"build_time"`
}

func cachePath(buildDir, libName string) string {
	return filepath.Join(buildDir, cachePrefix+libName+".cache")
}

func loadCache(path string) (*buildCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func saveCache(path string, cache *buildCache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// fingerprint hashes the install directories the outputs were generated
// for, the rendered metadata and the content of the given files. Missing
// files hash as absent, so a deleted artifact invalidates the fingerprint.
func fingerprint(dirs layout.Dirs, meta []byte, files []string) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "prefix=%s\nlibdir=%s\nincludedir=%s\ndatadir=%s\nbindir=%s\npkgconfigdir=%s\n",
		dirs.Prefix, dirs.Libdir, dirs.Includedir, dirs.Datadir, dirs.Bindir, dirs.Pkgconfigdir)
	h.Write(meta)
	for _, name := range files {
		fmt.Fprintf(h, "file=%s\n", filepath.Base(name))
		f, err := os.Open(name)
		if os.IsNotExist(err) {
			io.WriteString(h, "absent\n")
			continue
		}
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
