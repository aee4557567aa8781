package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Kind classifies uploaded files and decides where they land on disk.
type Kind string

const (
	KindVideo Kind = "video"
	KindPDF   Kind = "pdf"
	KindSlide Kind = "slide"
	KindImage Kind = "image"
)

var kindDirs = map[Kind]string{
	KindVideo: "videos",
	KindPDF:   "notes",
	KindSlide: "slides",
	KindImage: "images",
}

var kindExts = map[Kind][]string{
	KindVideo: {".mp4", ".avi", ".mov", ".mkv", ".webm"},
	KindPDF:   {".pdf"},
	KindSlide: {".ppt", ".pptx"},
	KindImage: {".png", ".jpg", ".jpeg", ".gif", ".webp"},
}

// ErrUnsupported indicates a filename whose extension is not
// acceptable for the requested kind.
var ErrUnsupported = errors.New("unsupported file type")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store saves and serves uploaded course files under a single root directory.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Init creates the directory tree the store expects.
func (s *Store) Init() error {
	for _, dir := range kindDirs {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}
	return nil
}

// Dir returns the directory holding all files of the given kind.
func (s *Store) Dir(kind Kind) string {
	return filepath.Join(s.root, kindDirs[kind])
}

// Allowed reports whether the filename extension is acceptable for the kind.
func Allowed(kind Kind, filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range kindExts[kind] {
		if ext == e {
			return true
		}
	}
	return false
}

// Save writes src in the kind's directory and returns the stored path,
// relative to the root, together with the number of bytes written.
// The original filename is sanitized and prefixed with a timestamp so
// stored names stay unique and safe to serve back.
func (s *Store) Save(kind Kind, filename string, src io.Reader) (string, int64, error) {
	if !Allowed(kind, filename) {
		return "", 0, fmt.Errorf("saving %q: %w", filename, ErrUnsupported)
	}

	name := time.Now().UTC().Format("20060102_150405") + "_" + sanitize(filename)
	rel := filepath.Join(kindDirs[kind], name)

	dst, err := os.Create(filepath.Join(s.root, rel))
	if err != nil {
		return "", 0, fmt.Errorf("creating %q: %w", rel, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(dst.Name())
		return "", 0, fmt.Errorf("writing %q: %w", rel, err)
	}

	return rel, n, nil
}

// Open opens a previously stored file. Paths escaping the root are rejected.
func (s *Store) Open(path string) (*os.File, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Remove deletes a stored file. Removing a missing file is not an error.
func (s *Store) Remove(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %q: %w", path, err)
	}
	return nil
}

func (s *Store) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("resolving %q: absolute path", path)
	}

	full := filepath.Join(s.root, path)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("resolving %q: outside storage root", path)
	}

	return full, nil
}

func sanitize(filename string) string {
	name := filepath.Base(filename)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "file"
	}
	return name
}
