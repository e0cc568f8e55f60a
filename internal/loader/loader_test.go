package loader

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"ragchat/internal/charset"
	"ragchat/internal/logger"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func gbk(t *testing.T, s string) []byte {
	t.Helper()
	out, err := simplifiedchinese.GBK.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

func newTestLoader() *Loader {
	return New(WithLogger(logger.Discard()))
}

func TestLoad_TextFilesAndSkips(t *testing.T) {
	dir := t.TempDir()
	utf := filepath.Join(dir, "a.txt")
	legacy := filepath.Join(dir, "b.txt")
	unsupported := filepath.Join(dir, "c.docx")
	writeFile(t, utf, []byte("hello world"))
	writeFile(t, legacy, gbk(t, "中文内容"))
	writeFile(t, unsupported, []byte("binary"))

	report := newTestLoader().Load(context.Background(), utf, legacy, unsupported, filepath.Join(dir, "missing.txt"))

	require.Len(t, report.Documents, 2)
	assert.Equal(t, "hello world", report.Documents[0].Content)
	assert.Equal(t, charset.UTF8, report.Documents[0].Source.Encoding)
	assert.Equal(t, "中文内容", report.Documents[1].Content)
	assert.Equal(t, charset.GB2312, report.Documents[1].Source.Encoding)
	assert.Len(t, report.Skipped, 2)
	assert.Equal(t, unsupported, report.Skipped[0].Path)
	assert.Contains(t, report.Skipped[0].Reason, "unsupported type")
}

func TestLoad_RetriesWhenProbeMisleads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "long.txt")
	data := append([]byte(strings.Repeat("x", charset.DefaultProbeSize+10)), gbk(t, "丂")...)
	writeFile(t, path, data)

	report := newTestLoader().Load(context.Background(), path)

	require.Len(t, report.Documents, 1)
	doc := report.Documents[0]
	assert.Equal(t, charset.GBK, doc.Source.Encoding)
	assert.True(t, strings.HasSuffix(doc.Content, "丂"))
}

func TestLoad_UndetectableFallsBackToLatin1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.txt")
	writeFile(t, path, []byte{0xFF, 0xFF, 0xFF})

	report := newTestLoader().Load(context.Background(), path)

	require.Len(t, report.Documents, 1)
	assert.Equal(t, charset.Latin1, report.Documents[0].Source.Encoding)
	assert.Empty(t, report.Skipped)
}

func TestLoad_RetryEndingOnLatin1WarnsLikeFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tail.txt")
	// ASCII probe passes as UTF-8; the odd-length 0xFF tail fits no candidate.
	data := append([]byte(strings.Repeat("a", charset.DefaultProbeSize)), 0xFF, 0xFF, 0xFF)
	writeFile(t, path, data)

	var buf bytes.Buffer
	l := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	report := l.Load(context.Background(), path)

	require.Len(t, report.Documents, 1)
	assert.Equal(t, charset.Latin1, report.Documents[0].Source.Encoding)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "encoding=latin-1")
	assert.NotContains(t, buf.String(), "decoded with alternate encoding")
}

func TestLoad_PDFUsesExtractedPages(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "report.pdf")
	writeFile(t, pdf, []byte("%PDF-1.4"))
	writeFile(t, filepath.Join(dir, "report.txt"), []byte("==== 第 1 页 ====\nfirst page\n\n==== 第 2 页 ====\nsecond page"))

	report := newTestLoader().Load(context.Background(), pdf)

	require.Len(t, report.Documents, 2)
	assert.Equal(t, "first page", report.Documents[0].Content)
	assert.Equal(t, 1, report.Documents[0].Source.Page)
	assert.Equal(t, pdf, report.Documents[0].Source.Path)
	assert.Equal(t, "second page", report.Documents[1].Content)
	assert.Equal(t, 2, report.Documents[1].Source.Page)
	assert.NotEqual(t, report.Documents[0].ID, report.Documents[1].ID)
}

func TestLoad_PDFWithoutExtractedTextIsSkipped(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "scan.pdf")
	writeFile(t, pdf, []byte("%PDF-1.4"))

	report := newTestLoader().Load(context.Background(), pdf)

	assert.Empty(t, report.Documents)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "no extracted text")
}

func TestLoad_DirectoryIsAllOrNothingPerEncoding(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("ascii only"))
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), gbk(t, "丂丄"))
	writeFile(t, filepath.Join(dir, "ignored.md"), []byte("# not text"))

	report := newTestLoader().Load(context.Background(), dir)

	require.Len(t, report.Documents, 2)
	for _, d := range report.Documents {
		assert.Equal(t, charset.GBK, d.Source.Encoding, "every file uses the first encoding that worked for all")
	}
	assert.Equal(t, "丂丄", report.Documents[1].Content)
}

func TestLoad_DirectoryNoEncodingFits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.txt"), []byte{0xFF, 0xFE, 0xFF})

	report := newTestLoader().Load(context.Background(), dir)

	assert.Empty(t, report.Documents)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, dir, report.Skipped[0].Path)
}

func TestLoad_GlobExpansion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.txt"), []byte("one"))
	writeFile(t, filepath.Join(dir, "two.txt"), []byte("two"))

	report := newTestLoader().Load(context.Background(), filepath.Join(dir, "*.txt"))

	assert.Len(t, report.Documents, 2)
}

func TestSplitPages_NoMarkers(t *testing.T) {
	pages := splitPages("  just text  ")
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].number)
	assert.Equal(t, "just text", pages[0].text)
}
