package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
)

// ErrUnsupportedFile is returned for extensions other than .txt, .md and .pdf.
var ErrUnsupportedFile = errors.New("unsupported file type")

// FileError records one file that could not be indexed.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// TreeResult summarizes IndexTree.
type TreeResult struct {
	Files   int
	Chunks  int
	Skipped []string
	// Ignored counts paths excluded by the root's .ragignore.
	Ignored int
	Failed  []FileError
}

// Supported reports whether path has an indexable extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

// ReadDocument extracts the text of a .txt, .md or .pdf file.
func ReadDocument(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not valid UTF-8", path)
		}
		return string(data), nil
	case ".pdf":
		return readPDF(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	data, err := io.ReadAll(text)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return string(data), nil
}

// IndexFile indexes one file under an explicit tenant.
func (ix *Indexer) IndexFile(ctx context.Context, path, owner string) (Result, error) {
	if !Supported(path) {
		return Result{}, apperr.Validation("indexer.index_file", fmt.Errorf("%w: %s", ErrUnsupportedFile, path))
	}
	text, err := ReadDocument(path)
	if err != nil {
		return Result{}, err
	}
	return ix.Index(ctx, text, owner)
}

// IndexTree indexes every supported file under root. The first directory
// below root names the tenant: root/acme/policy.txt belongs to "acme".
// Files directly in root are skipped, as are paths matched by
// root/.ragignore. A failing file does not stop the walk;
// the returned error joins every failure.
func (ix *Indexer) IndexTree(ctx context.Context, root string) (TreeResult, error) {
	var res TreeResult

	info, err := os.Stat(root)
	if err != nil {
		return res, apperr.Validation("indexer.index_tree", err)
	}
	if !info.IsDir() {
		return res, apperr.Validation("indexer.index_tree", fmt.Errorf("%s is not a directory", root))
	}
	excluded, err := ignore.Load(root)
	if err != nil {
		return res, apperr.Validation("indexer.index_tree", err)
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Failed = append(res.Failed, FileError{Path: path, Err: err})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}
		if rel, _ := filepath.Rel(root, path); excluded.Match(rel, d.IsDir()) {
			ix.logger.Debug(ctx, "path excluded by "+ignore.FileName, zap.String("path", path))
			res.Ignored++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(path) {
			return nil
		}

		owner, err := tenant.FromPath(root, path)
		if errors.Is(err, tenant.ErrMissingTenant) {
			ix.logger.Warn(ctx, "skipping file outside a tenant directory", zap.String("path", path))
			res.Skipped = append(res.Skipped, path)
			return nil
		}
		if err != nil {
			res.Failed = append(res.Failed, FileError{Path: path, Err: err})
			return nil
		}

		r, err := ix.IndexFile(ctx, path, owner)
		if err != nil {
			ix.logger.Error(ctx, "failed to index file", zap.String("path", path), zap.Error(err))
			res.Failed = append(res.Failed, FileError{Path: path, Err: err})
			return nil
		}
		res.Files++
		res.Chunks += r.Chunks
		ix.logger.Info(ctx, "indexed file",
			zap.String("path", path),
			zap.String("tenant", owner),
			zap.Int("chunks", r.Chunks),
		)
		return nil
	})
	if walkErr != nil {
		return res, walkErr
	}

	if len(res.Failed) > 0 {
		errs := make([]error, len(res.Failed))
		for i, f := range res.Failed {
			errs[i] = f
		}
		return res, errors.Join(errs...)
	}
	return res, nil
}
