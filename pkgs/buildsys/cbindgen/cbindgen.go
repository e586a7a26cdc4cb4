package cbindgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/goplus/capi/pkgs/buildsys"
)

// EnvCbindgen overrides the cbindgen executable.
const EnvCbindgen = "CAPI_CBINDGEN"

// ConfigFile is the generator configuration looked up in the crate root.
const ConfigFile = "cbindgen.toml"

// Generator produces C headers with the cbindgen command line tool.
type Generator struct {
	// Bin is the cbindgen executable; empty means $CAPI_CBINDGEN or "cbindgen".
	Bin    string
	Stdout io.Writer
	Stderr io.Writer
}

var _ buildsys.HeaderGenerator = (*Generator)(nil)

// New returns a Generator streaming the tool output to the process' stderr.
func New() *Generator {
	return &Generator{Stdout: os.Stderr, Stderr: os.Stderr}
}

func (g *Generator) bin() string {
	if g.Bin != "" {
		return g.Bin
	}
	return buildsys.Tool(EnvCbindgen, "cbindgen")
}

// Generate writes the header for req.CrateDir to req.Out. The crate's own
// cbindgen.toml is honoured; the requested defines are added to its
// autogen_warning preamble through a derived configuration file.
func (g *Generator) Generate(ctx context.Context, req buildsys.HeaderRequest) error {
	if err := os.MkdirAll(filepath.Dir(req.Out), 0o755); err != nil {
		return err
	}
	cfgPath, err := writeConfig(req)
	if err != nil {
		return err
	}
	defer os.Remove(cfgPath)

	args := []string{"--config", cfgPath, "--output", req.Out, req.CrateDir}
	_, err = buildsys.Run(ctx, g.bin(), args, nil, g.Stdout, g.Stderr)
	return err
}

// Config returns the crate configuration with the defines appended to
// autogen_warning.
func Config(crateDir string, defines [][2]string) (map[string]any, error) {
	cfg := map[string]any{}
	data, err := os.ReadFile(filepath.Join(crateDir, ConfigFile))
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", ConfigFile, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		cfg["language"] = "C"
	default:
		return nil, err
	}

	if len(defines) > 0 {
		warning, _ := cfg["autogen_warning"].(string)
		var b strings.Builder
		b.WriteString(warning)
		b.WriteByte('\n')
		for _, d := range defines {
			fmt.Fprintf(&b, "#define %s %s\n", d[0], d[1])
		}
		cfg["autogen_warning"] = b.String()
	}
	return cfg, nil
}

func writeConfig(req buildsys.HeaderRequest) (string, error) {
	cfg, err := Config(req.CrateDir, req.Defines)
	if err != nil {
		return "", err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(req.Out), ".cbindgen-*.toml")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), f.Close()
}

// VersionDefines returns the <NAME>_MAJOR, _MINOR and _PATCH defines for a
// header named name.
func VersionDefines(name string, major, minor, patch uint64) [][2]string {
	prefix := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
	return [][2]string{
		{prefix + "_MAJOR", fmt.Sprint(major)},
		{prefix + "_MINOR", fmt.Sprint(minor)},
		{prefix + "_PATCH", fmt.Sprint(patch)},
	}
}
