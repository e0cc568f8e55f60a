// Package loader turns files and directories into decoded documents.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ragchat/internal/charset"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

// DefaultDirEncodings is the order tried when scanning a directory.
var DefaultDirEncodings = []string{charset.UTF8, charset.GBK, charset.GB18030}

// pageMarker matches the page headers the OCR service writes into the text
// it extracts from a PDF.
var pageMarker = regexp.MustCompile(`(?m)^=+\s*第\s*(\d+)\s*页\s*=+[ \t]*\r?$`)

// Loader reads .txt files, OCR-extracted PDF text and directories of .txt files.
type Loader struct {
	resolver     *charset.Resolver
	dirEncodings []string
	logger       *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithResolver sets the encoding resolver used for single files.
func WithResolver(r *charset.Resolver) Option {
	return func(l *Loader) {
		if r != nil {
			l.resolver = r
		}
	}
}

// WithDirEncodings sets the whole-directory encoding attempts.
func WithDirEncodings(names ...string) Option {
	return func(l *Loader) {
		if len(names) > 0 {
			l.dirEncodings = names
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger.Or(lg) }
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		resolver:     charset.NewResolver(),
		dirEncodings: DefaultDirEncodings,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every path. Glob patterns are expanded. A path that cannot be
// read or decoded is recorded in Skipped and does not stop the batch.
func (l *Loader) Load(ctx context.Context, paths ...string) domain.LoadReport {
	var report domain.LoadReport
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if err := ctx.Err(); err != nil {
				report.Skipped = append(report.Skipped, domain.SkippedFile{Path: m, Reason: err.Error()})
				continue
			}
			docs, err := l.loadPath(ctx, m)
			if err != nil {
				l.logger.Warn("skipping source", "path", m, "error", err)
				report.Skipped = append(report.Skipped, domain.SkippedFile{Path: m, Reason: err.Error()})
				continue
			}
			l.logger.Info("loaded source", "path", m, "documents", len(docs))
			report.Documents = append(report.Documents, docs...)
		}
	}
	return report
}

func (l *Loader) loadPath(ctx context.Context, path string) ([]domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return l.loadDir(ctx, path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		doc, err := l.loadText(path)
		if err != nil {
			return nil, err
		}
		return []domain.Document{doc}, nil
	case ".pdf":
		return l.loadPDF(path)
	}
	return nil, fmt.Errorf("%w: %s (supported: .txt, .pdf, directory)", domain.ErrUnsupportedType, filepath.Ext(path))
}

// loadText detects the encoding from the file prefix, then decodes the full
// content. When the prefix was misleading, every other candidate is tried in
// priority order, ending with Latin-1.
func (l *Loader) loadText(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	detected := l.resolver.ResolveBytes(data)
	if detected.Fallback {
		l.logger.Warn("no candidate encoding matched, using fallback", "path", path, "encoding", detected.Name)
	}
	text, err := charset.Decode(data, detected.Name)
	used := detected.Name
	if err != nil {
		l.logger.Debug("full decode failed, retrying", "path", path, "encoding", detected.Name, "error", err)
		text, used, err = l.retryDecode(data, detected.Name)
		if err != nil {
			return domain.Document{}, err
		}
		if used == charset.Latin1 {
			l.logger.Warn("no candidate encoding decoded the file, using fallback", "path", path, "encoding", used)
		} else {
			l.logger.Info("decoded with alternate encoding", "path", path, "encoding", used)
		}
	}
	return domain.Document{
		ID:      hashString(path),
		Content: text,
		Source:  domain.SourceMetadata{Path: path, Encoding: used},
	}, nil
}

func (l *Loader) retryDecode(data []byte, tried string) (string, string, error) {
	remaining := append(l.resolver.Candidates(), charset.Latin1)
	var errs []error
	for _, name := range remaining {
		if name == tried {
			continue
		}
		text, err := charset.Decode(data, name)
		if err == nil {
			return text, name, nil
		}
		errs = append(errs, err)
	}
	return "", "", errors.Join(errs...)
}

// loadPDF reads the text the OCR service extracted next to the PDF and
// splits it into one document per page.
func (l *Loader) loadPDF(path string) ([]domain.Document, error) {
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
	if _, err := os.Stat(sidecar); err != nil {
		return nil, fmt.Errorf("no extracted text for %s: %w", path, err)
	}
	extracted, err := l.loadText(sidecar)
	if err != nil {
		return nil, err
	}
	pages := splitPages(extracted.Content)
	docs := make([]domain.Document, 0, len(pages))
	for _, pg := range pages {
		docs = append(docs, domain.Document{
			ID:      hashString(path) + "#" + strconv.Itoa(pg.number),
			Content: pg.text,
			Source: domain.SourceMetadata{
				Path:     path,
				Page:     pg.number,
				Encoding: extracted.Source.Encoding,
			},
		})
	}
	return docs, nil
}

type page struct {
	number int
	text   string
}

func splitPages(content string) []page {
	locs := pageMarker.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return []page{{number: 1, text: strings.TrimSpace(content)}}
	}
	pages := make([]page, 0, len(locs))
	for i, loc := range locs {
		n, _ := strconv.Atoi(content[loc[2]:loc[3]])
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		pages = append(pages, page{number: n, text: strings.TrimSpace(content[loc[1]:end])})
	}
	return pages
}

// loadDir decodes every .txt file under dir with one encoding at a time.
// An attempt succeeds only if every file decodes; otherwise the next
// encoding is tried from scratch.
func (l *Loader) loadDir(ctx context.Context, dir string) ([]domain.Document, error) {
	files, err := listText(dir)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, enc := range l.dirEncodings {
		docs, err := decodeAll(ctx, files, enc)
		if err == nil {
			l.logger.Info("loaded directory", "path", dir, "encoding", enc, "files", len(files))
			return docs, nil
		}
		l.logger.Debug("directory encoding attempt failed", "path", dir, "encoding", enc, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", enc, err))
	}
	return nil, fmt.Errorf("directory %s: %w", dir, errors.Join(errs...))
}

func decodeAll(ctx context.Context, files []string, enc string) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		text, err := charset.Decode(data, enc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		docs = append(docs, domain.Document{
			ID:      hashString(f),
			Content: text,
			Source:  domain.SourceMetadata{Path: f, Encoding: enc},
		})
	}
	return docs, nil
}

func listText(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".txt") {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
