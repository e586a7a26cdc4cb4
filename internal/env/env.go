package env

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFile is the package manifest looked up by FindManifest.
const ManifestFile = "Cargo.toml"

// Environment variables consulted when the matching flag is absent.
const (
	EnvTargetDir = "CARGO_TARGET_DIR"
	EnvDestdir   = "DESTDIR"
)

// ErrNoManifest is returned when no manifest is found above a directory.
var ErrNoManifest = errors.New("could not find " + ManifestFile + " in the current directory or any parent")

// FindManifest walks up from dir and returns the absolute path of the
// nearest manifest.
func FindManifest(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		p := filepath.Join(dir, ManifestFile)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoManifest
		}
		dir = parent
	}
}

// TargetDir returns the build tool's output root for the manifest at
// manifestPath: flag, then $CARGO_TARGET_DIR, then <manifest dir>/target.
// Relative values are taken from the manifest directory.
func TargetDir(manifestPath, flag string) string {
	root := filepath.Dir(manifestPath)
	dir := flag
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(EnvTargetDir))
	}
	if dir == "" {
		return filepath.Join(root, "target")
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Clean(dir)
}

// Destdir returns flag, or $DESTDIR when flag is empty.
func Destdir(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvDestdir)
}
