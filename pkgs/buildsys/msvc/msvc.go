package msvc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goplus/capi/pkgs/buildsys"
)

// Environment variables overriding the MSVC tools. LIB itself is the
// linker's search path, hence the prefix.
const (
	EnvDumpbin = "CAPI_DUMPBIN"
	EnvLib     = "CAPI_LIB"
)

// Tools rebuilds MSVC import libraries: dumpbin lists the exports of the
// built DLL into a module definition file, and lib turns that file into
// <name>.dll.lib.
type Tools struct {
	// Dumpbin and Lib default to $CAPI_DUMPBIN and $CAPI_LIB, then to
	// "dumpbin" and "lib" on PATH.
	Dumpbin string
	Lib     string
	Stdout  io.Writer
	Stderr  io.Writer
}

var _ buildsys.ImportLibraryTool = (*Tools)(nil)

func New() *Tools {
	return &Tools{Stdout: os.Stderr, Stderr: os.Stderr}
}

func (t *Tools) dumpbin() string {
	if t.Dumpbin != "" {
		return t.Dumpbin
	}
	return buildsys.Tool(EnvDumpbin, "dumpbin")
}

func (t *Tools) lib() string {
	if t.Lib != "" {
		return t.Lib
	}
	return buildsys.Tool(EnvLib, "lib")
}

// Machine maps a target architecture to the lib /MACHINE value.
func Machine(arch string) (string, error) {
	switch arch {
	case "x86_64":
		return "X64", nil
	case "i686", "i586", "i386", "x86":
		return "X86", nil
	case "aarch64":
		return "ARM64", nil
	}
	return "", fmt.Errorf("lib: unsupported architecture %q", arch)
}

// Args returns the lib command line for req.
func Args(req buildsys.ImportLibRequest) ([]string, error) {
	m, err := Machine(req.Arch)
	if err != nil {
		return nil, err
	}
	return []string{
		"/NOLOGO",
		"/DEF:" + req.DefFile,
		"/MACHINE:" + m,
		"/NAME:" + req.DLLName,
		"/OUT:" + req.Out,
	}, nil
}

// Exports parses the export names from "dumpbin /EXPORTS" output. The table
// starts after the "ordinal hint RVA name" header and ends at the first
// blank line.
func Exports(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	inTable, started := false, false
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if !inTable {
			inTable = len(fields) >= 4 && fields[0] == "ordinal" && fields[len(fields)-1] == "name"
			continue
		}
		if len(fields) == 0 {
			if started {
				break
			}
			continue
		}
		started = true
		if len(fields) >= 4 {
			names = append(names, fields[3])
		}
	}
	return names, sc.Err()
}

// WriteDef writes a module definition file exporting names.
func WriteDef(w io.Writer, names []string) error {
	var b strings.Builder
	b.WriteString("EXPORTS\n")
	for _, n := range names {
		b.WriteString("\t" + n + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ImportLibrary writes req.DefFile from the exports of req.DLL and builds
// req.Out from it.
func (t *Tools) ImportLibrary(ctx context.Context, req buildsys.ImportLibRequest) error {
	args, err := Args(req)
	if err != nil {
		return err
	}

	var listing bytes.Buffer
	if _, err := buildsys.Run(ctx, t.dumpbin(), []string{"/NOLOGO", "/EXPORTS", req.DLL}, nil, &listing, t.Stderr); err != nil {
		return err
	}
	names, err := Exports(&listing)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("dumpbin: %s exports no symbols", req.DLL)
	}
	f, err := os.Create(req.DefFile)
	if err != nil {
		return err
	}
	err = WriteDef(f, names)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	_, err = buildsys.Run(ctx, t.lib(), args, nil, t.Stdout, t.Stderr)
	return err
}
