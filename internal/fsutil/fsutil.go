// Package fsutil holds the small file primitives shared by the manifest store
// and the sync engine: atomic replacement of a file's content and text reads
// that tolerate a leading byte-order mark.
package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TempPrefix is the name prefix of in-flight temp files. Watchers filter on
// exact base names, so temp files never look like a watched file.
const TempPrefix = ".rminify-tmp-"

// WriteFileAtomic replaces path with data by writing a temp file in the same
// directory and renaming it over path. Readers observe either the old or the
// new content, never a partial write. An existing file keeps its mode.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmpFile, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// ReadText reads path as UTF-8 text. A UTF-8 or UTF-16 byte-order mark is
// honoured and stripped so content that begins with a directive is still
// recognised as such.
func ReadText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return DecodeText(f)
}

// DecodeText decodes r the same way ReadText decodes a file.
func DecodeText(r io.Reader) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	b, err := io.ReadAll(transform.NewReader(r, decoder))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// CopyFile copies src over dst atomically.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(src); err == nil {
		perm = info.Mode().Perm()
	}

	return WriteFileAtomic(dst, data, perm)
}

// Exists reports whether path exists and is a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// IsNotExist reports whether err says a file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// IsTempFile reports whether name is one of our in-flight temp files.
func IsTempFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), TempPrefix)
}
