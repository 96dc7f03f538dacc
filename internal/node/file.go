package node

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

// File is the input to one send. Reader must yield exactly Size bytes.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Reader   io.Reader
}

func (f File) Metadata() protocol.Metadata {
	return protocol.Metadata{Name: f.Name, Size: f.Size, MimeType: f.MimeType}
}

// OpenFile opens path for sending and detects its MIME type from content.
// The caller closes the returned file.
func OpenFile(path string) (File, *os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, nil, err
	}
	if info.IsDir() {
		return File{}, nil, fmt.Errorf("%s is a directory", path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, nil, fmt.Errorf("failed to detect type of %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, err
	}

	return File{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MimeType: mtype.String(),
		Reader:   f,
	}, f, nil
}

// Checksum returns the hex SHA-256 of everything read from r.
func Checksum(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// SafeFileName strips directories from a peer supplied name.
func SafeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "download"
	}
	return base
}

// SaveResult writes a received file into dir under its declared name, adding a numeric
// suffix instead of overwriting an existing file.
func SaveResult(dir string, res *Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := SafeFileName(res.Metadata.Name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(res.Data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}
