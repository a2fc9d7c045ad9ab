// Package storage implements the shared file-path convention between the
// gateway and the worker pool: both sides read and write document artifacts
// under a common base path.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDocument is returned when a client-supplied relative path
// escapes the document directory.
var ErrOutsideDocument = errors.New("storage: path outside document directory")

// Store resolves document directories and saves uploads under a base path.
type Store struct {
	BasePath string
}

func New(basePath string) *Store {
	return &Store{BasePath: basePath}
}

// DocumentDir resolves the directory holding a document's artifacts.
// processingPath, when given, wins: absolute paths are used as-is, relative
// ones resolve against the base path. Otherwise the document id is the
// directory name.
func (s *Store) DocumentDir(documentID, processingPath string) string {
	if processingPath != "" {
		if filepath.IsAbs(processingPath) {
			return filepath.Clean(processingPath)
		}
		return filepath.Join(s.BasePath, processingPath)
	}
	return filepath.Join(s.BasePath, documentID)
}

// pagePatterns are the page-image naming conventions the processing
// pipeline has produced over time, in lookup order.
func pagePatterns(page int) []string {
	return []string{
		fmt.Sprintf("images/page_%d_full.png", page),
		fmt.Sprintf("page_%d_full.png", page),
		fmt.Sprintf("page_%03d.png", page),
		fmt.Sprintf("page_%d.png", page),
		fmt.Sprintf("images/page_%03d.png", page),
	}
}

// FindPageImage locates the rendered image of a 1-based page number inside
// a document directory. Returns os.ErrNotExist when no convention matches.
func (s *Store) FindPageImage(docDir string, page int) (string, error) {
	for _, pattern := range pagePatterns(page) {
		candidate := filepath.Join(docDir, pattern)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("page image for page %d: %w", page, os.ErrNotExist)
}

// Resolve joins a client-supplied relative path to a document directory and
// rejects traversal outside it.
func (s *Store) Resolve(docDir, rel string) (string, error) {
	full := filepath.Join(docDir, filepath.FromSlash(rel))
	cleanDir := filepath.Clean(docDir)
	if full != cleanDir && !strings.HasPrefix(full, cleanDir+string(filepath.Separator)) {
		return "", ErrOutsideDocument
	}
	return full, nil
}

// SaveUpload writes an uploaded document under pending/<taskID>/ and returns
// the stored path. The pending directory is the handoff point to workers.
func (s *Store) SaveUpload(taskID, filename string, r io.Reader) (string, error) {
	if filename == "" {
		filename = "document.pdf"
	}
	filename = filepath.Base(filename) // strip any client-supplied directories
	dir := filepath.Join(s.BasePath, "pending", taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create pending dir: %w", err)
	}
	dst := filepath.Join(dir, filename)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// CopyFile copies src to dst, creating parent directories. Used to promote
// temporary crops into permanent storage.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
