package pkgconfig

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Render returns the descriptor in pkg-config file format. The output only
// depends on d, so equal descriptors render byte-identical files.
func (d *Descriptor) Render() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "prefix=%s\n", d.Prefix)
	fmt.Fprintf(&b, "exec_prefix=%s\n", d.ExecPrefix)
	fmt.Fprintf(&b, "libdir=%s\n", d.Libdir)
	fmt.Fprintf(&b, "includedir=%s\n", d.Includedir)
	b.WriteByte('\n')

	fmt.Fprintf(&b, "Name: %s\n", d.Name)
	fmt.Fprintf(&b, "Description: %s\n", strings.ReplaceAll(d.Description, "\n", " "))
	fmt.Fprintf(&b, "Version: %s\n", d.Version)
	fmt.Fprintf(&b, "Libs: %s\n", strings.Join(d.Libs, " "))
	fmt.Fprintf(&b, "Cflags: %s\n", strings.Join(d.Cflags, " "))
	if len(d.Requires) > 0 {
		fmt.Fprintf(&b, "Requires: %s\n", strings.Join(d.Requires, ", "))
	}
	if len(d.RequiresPrivate) > 0 {
		fmt.Fprintf(&b, "Requires.private: %s\n", strings.Join(d.RequiresPrivate, ", "))
	}
	return b.Bytes()
}

// WriteTo writes the rendered descriptor to w.
func (d *Descriptor) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(d.Render())
	return int64(n), err
}
