package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/goplus/capi/internal/layout"
)

const backupSuffix = ".capi-old"

var errIsDir = errors.New("is a directory")

// Install copies every entry of out.Plan to its destination and recreates
// the link chain. All destinations are checked for writability before the
// first copy. On failure everything written so far is removed and replaced
// files are restored. Installs into the same root are serialized.
func (e *Executor) Install(ctx context.Context, out *Output) error {
	plan := out.Plan
	unlock, err := lockedfile.MutexAt(installLock(plan)).Lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := checkWritable(plan); err != nil {
		return err
	}

	tx := &installTx{backups: make(map[string]string)}
	for _, en := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return tx.rollback(err)
		}
		e.log.Info("Installing", "kind", en.Kind, "path", en.Dest)
		if err := tx.install(en, out.Root(en.Root)); err != nil {
			return tx.rollback(err)
		}
	}
	tx.commit()
	return nil
}

// Clean removes every destination of out.Plan and the files Build leaves
// in the build directory. Directories are never removed recursively; only
// the header directories Build created are dropped once empty.
func (e *Executor) Clean(ctx context.Context, out *Output) error {
	var errs []error
	remove := func(p string) {
		fi, err := os.Lstat(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, &IOError{Op: "remove", Path: p, Err: err})
			}
			return
		}
		if fi.IsDir() {
			return
		}
		if err := os.Remove(p); err != nil {
			errs = append(errs, &IOError{Op: "remove", Path: p, Err: err})
			return
		}
		e.log.Debug("Removed", "path", p)
	}

	for _, dst := range out.Plan.Dests() {
		if err := ctx.Err(); err != nil {
			return err
		}
		remove(filepath.FromSlash(dst))
	}
	for _, p := range out.buildOutputs() {
		remove(p)
	}
	if out.Config.Header.Enabled {
		removeEmptyParents(filepath.Dir(out.headerPath()), out.BuildDir)
	}
	return errors.Join(errs...)
}

// removeEmptyParents removes dir and its empty parents up to, not
// including, stop.
func removeEmptyParents(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop+string(filepath.Separator)) {
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// installLock is a lock file outside the install root, shared by every
// install into the same destdir and prefix.
func installLock(plan *layout.Plan) string {
	sum := sha256.Sum256([]byte(plan.Destdir + "\x00" + plan.Dirs.Prefix))
	return filepath.Join(os.TempDir(), "capi-install-"+hex.EncodeToString(sum[:8])+".lock")
}

// checkWritable fails with an IOError naming the first destination that
// cannot be written.
func checkWritable(plan *layout.Plan) error {
	probed := make(map[string]error)
	for _, dst := range plan.Dests() {
		dst = filepath.FromSlash(dst)
		if fi, err := os.Lstat(dst); err == nil && fi.IsDir() {
			return &IOError{Op: "install", Path: dst, Err: errIsDir}
		}
		dir, err := existingAncestor(filepath.Dir(dst))
		if err != nil {
			return &IOError{Op: "install", Path: dst, Err: err}
		}
		perr, ok := probed[dir]
		if !ok {
			perr = probeWrite(dir)
			probed[dir] = perr
		}
		if perr != nil {
			return &IOError{Op: "install", Path: dst, Err: perr}
		}
	}
	return nil
}

func existingAncestor(dir string) (string, error) {
	for {
		fi, err := os.Stat(dir)
		if err == nil {
			if !fi.IsDir() {
				return "", &fs.PathError{Op: "stat", Path: dir, Err: errors.New("not a directory")}
			}
			return dir, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", err
		}
		dir = parent
	}
}

func probeWrite(dir string) error {
	f, err := os.CreateTemp(dir, ".capi-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// installTx records what an install changed so it can be undone.
type installTx struct {
	written []string          // destinations, in install order
	created []string          // directories created, outermost first
	backups map[string]string // destination -> the file it replaced
}

func (tx *installTx) install(en layout.Entry, root string) error {
	dst := filepath.FromSlash(en.Dest)
	if err := tx.mkdirAll(filepath.Dir(dst)); err != nil {
		return err
	}

	// links and files alike are removed before being recreated
	if _, err := os.Lstat(dst); err == nil {
		bak := dst + backupSuffix
		os.Remove(bak)
		if err := os.Rename(dst, bak); err != nil {
			return &IOError{Op: "replace", Path: dst, Err: err}
		}
		tx.backups[dst] = bak
	}
	tx.written = append(tx.written, dst)

	if en.Kind == layout.Link {
		if err := os.Symlink(en.LinkTarget, dst); err != nil {
			return &IOError{Op: "symlink", Path: dst, Err: err}
		}
		return nil
	}
	return copyFile(filepath.Join(root, filepath.FromSlash(en.Source)), dst)
}

func (tx *installTx) mkdirAll(dir string) error {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if filepath.Dir(d) == d {
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	for i := len(missing) - 1; i >= 0; i-- {
		tx.created = append(tx.created, missing[i])
	}
	return nil
}

// rollback undoes the transaction and returns cause. Paths that could not
// be restored are reported in a PartialError.
func (tx *installTx) rollback(cause error) error {
	var left []string
	for i := len(tx.written) - 1; i >= 0; i-- {
		dst := tx.written[i]
		if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			left = append(left, dst)
			continue
		}
		if bak, ok := tx.backups[dst]; ok {
			if err := os.Rename(bak, dst); err != nil {
				left = append(left, bak)
			}
		}
	}
	for i := len(tx.created) - 1; i >= 0; i-- {
		os.Remove(tx.created[i])
	}
	if len(left) > 0 {
		return &PartialError{Done: left, Err: cause}
	}
	return cause
}

func (tx *installTx) commit() {
	for _, bak := range tx.backups {
		os.Remove(bak)
	}
}

// copyFile copies src to dst through a temporary file in dst's directory,
// so dst is either absent or complete. The mode of src is kept.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &IOError{Op: "copy", Path: src, Err: err}
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return &IOError{Op: "copy", Path: src, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return &IOError{Op: "copy", Path: dst, Err: err}
	}
	_, err = io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), fi.Mode().Perm())
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return &IOError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}
