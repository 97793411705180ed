// Package fs implements the document storage interface over a local
// directory tree. It is the local stand-in for a remote blob container;
// only supported document types are listed.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ragpipe/internal/domain"
	"ragpipe/internal/loader"
)

// Store lists and reads documents below a root directory.
type Store struct {
	root string
}

// New creates a store rooted at the given directory or single file.
func New(root string) *Store {
	return &Store{root: root}
}

// List walks the root and returns every supported document, sorted by
// name for deterministic ingestion order.
func (s *Store) List(ctx context.Context) ([]domain.DocumentInfo, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", s.root, domain.ErrNotFound)
		}
		return nil, err
	}
	if !info.IsDir() {
		ct := loader.ContentTypeFor(strings.ToLower(filepath.Ext(s.root)))
		if ct == "" {
			return nil, &domain.ValidationError{Reason: "unsupported document type: " + s.root}
		}
		return []domain.DocumentInfo{{Name: filepath.Base(s.root), ContentType: ct}}, nil
	}

	var docs []domain.DocumentInfo
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ct := loader.ContentTypeFor(strings.ToLower(filepath.Ext(path)))
		if ct == "" {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		docs = append(docs, domain.DocumentInfo{Name: filepath.ToSlash(rel), ContentType: ct})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// Read returns the raw bytes of a document by name.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	path := s.root
	if info, err := os.Stat(s.root); err == nil && info.IsDir() {
		path = filepath.Join(s.root, filepath.FromSlash(name))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}
