package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"mailtriage/internal/models"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu      sync.Mutex
	names   []string
	results map[string]*models.UploadResult
	errs    map[string]error
}

func (f *fakeUploader) UploadEmail(ctx context.Context, filename string, content io.Reader) (*models.UploadResult, error) {
	_, _ = io.ReadAll(content)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, filename)
	if err := f.errs[filename]; err != nil {
		return nil, err
	}
	if r := f.results[filename]; r != nil {
		return r, nil
	}
	return &models.UploadResult{Analysis: models.Analysis{Verdict: models.VerdictBenign}}, nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.names...)
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImporter_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.eml", "Subject: a")
	writeFile(t, dir, "nested/b.ARF", "Subject: b")
	writeFile(t, dir, "notes.txt", "skip me")
	writeFile(t, dir, "c.eml", "Subject: c")

	fake := &fakeUploader{
		results: map[string]*models.UploadResult{
			"b.ARF": {Error: "Ollama analysis failed", Details: "timeout"},
		},
		errs: map[string]error{"c.eml": errors.New("connection refused")},
	}
	var out bytes.Buffer
	im := newImporter(fake, 2, &out)

	summary, err := im.importFiles(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, importSummary{Total: 3, Analyzed: 1, SoftFailures: 1, Errors: 1}, summary)
	assert.Equal(t, []string{"a.eml", "b.ARF", "c.eml"}, fake.uploaded())
	assert.Contains(t, out.String(), "stored, analysis failed: timeout")
	assert.Contains(t, out.String(), "connection refused")
}

func TestImporter_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "only.eml", "Subject: x")

	fake := &fakeUploader{}
	summary, err := newImporter(fake, 4, io.Discard).importFiles(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, importSummary{Total: 1, Analyzed: 1}, summary)
}

func TestImporter_RejectsOtherFileTypes(t *testing.T) {
	path := writeFile(t, t.TempDir(), "mail.txt", "Subject: x")

	fake := &fakeUploader{}
	_, err := newImporter(fake, 1, io.Discard).importFiles(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file type")
	assert.Empty(t, fake.uploaded())
}

func TestImporter_MissingPath(t *testing.T) {
	_, err := newImporter(&fakeUploader{}, 1, io.Discard).importFiles(context.Background(), "/does/not/exist")
	require.Error(t, err)
}

func TestImporter_MBOX(t *testing.T) {
	mbox := strings.Join([]string{
		"From alice@example.com Mon Jan  1 00:00:00 2024",
		"Subject: one",
		"",
		"body one",
		"From bob@example.com Mon Jan  1 00:00:00 2024",
		"Subject: two",
		"",
		">From the quoted line",
		"",
	}, "\n")
	path := writeFile(t, t.TempDir(), "archive.mbox", mbox)

	fake := &fakeUploader{}
	summary, err := newImporter(fake, 2, io.Discard).importMBOXFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, importSummary{Total: 2, Analyzed: 2}, summary)
	assert.Equal(t, []string{"archive-0001.eml", "archive-0002.eml"}, fake.uploaded())
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			cmd := &cobra.Command{}
			var out bytes.Buffer
			cmd.SetIn(strings.NewReader(tt.input))
			cmd.SetOut(&out)

			assert.Equal(t, tt.want, confirm(cmd, "Delete?"))
			assert.Equal(t, "Delete? [y/N] ", out.String())
		})
	}
}
