package lens

import (
	"fmt"
	"io"
	"os"
)

// FileExists reports whether the named file exists.
func FileExists(filename string) bool {
	if _, err := os.Stat(filename); err != nil {
		return !os.IsNotExist(err)
	}
	return true
}

// CopyFile copies src to dst. If src is a symlink, it recreates the symlink
// at dst pointing to the same target.
func CopyFile(src, dst string) (err error) {
	if info, err := os.Lstat(src); err != nil {
		return err
	} else if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // uses default file mode (0666 & umask)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// BackupFile copies path to path.orig unless a backup already exists, so the
// pre-reduction input survives even if the run is interrupted mid-write.
func BackupFile(path string) (string, error) {
	backup := path + ".orig"
	if FileExists(backup) {
		return backup, nil
	}
	if err := CopyFile(path, backup); err != nil {
		return "", fmt.Errorf("backup failure: %w", err)
	}
	return backup, nil
}
