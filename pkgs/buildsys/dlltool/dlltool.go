package dlltool

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goplus/capi/pkgs/buildsys"
)

// EnvDlltool overrides the dlltool executable, as the GNU toolchains do.
const EnvDlltool = "DLLTOOL"

// Dlltool builds MinGW import libraries from module definition files.
type Dlltool struct {
	// Bin is the dlltool executable; empty means $DLLTOOL or "dlltool".
	Bin    string
	Stdout io.Writer
	Stderr io.Writer
}

var _ buildsys.ImportLibraryTool = (*Dlltool)(nil)

func New() *Dlltool {
	return &Dlltool{Stdout: os.Stderr, Stderr: os.Stderr}
}

func (d *Dlltool) bin() string {
	if d.Bin != "" {
		return d.Bin
	}
	return buildsys.Tool(EnvDlltool, "dlltool")
}

// Machine maps a target architecture to the dlltool -m value.
func Machine(arch string) (string, error) {
	switch arch {
	case "x86_64":
		return "i386:x86-64", nil
	case "i686", "i586", "i386", "x86":
		return "i386", nil
	case "aarch64":
		return "arm64", nil
	}
	return "", fmt.Errorf("dlltool: unsupported architecture %q", arch)
}

// Args returns the dlltool command line for req.
func Args(req buildsys.ImportLibRequest) ([]string, error) {
	m, err := Machine(req.Arch)
	if err != nil {
		return nil, err
	}
	return []string{"-m", m, "-D", req.DLLName, "-l", req.Out, "-d", req.DefFile}, nil
}

func (d *Dlltool) ImportLibrary(ctx context.Context, req buildsys.ImportLibRequest) error {
	args, err := Args(req)
	if err != nil {
		return err
	}
	_, err = buildsys.Run(ctx, d.bin(), args, nil, d.Stdout, d.Stderr)
	return err
}
