package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mailtriage/internal/console"
	"mailtriage/internal/emails"
	"mailtriage/internal/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	importMBOX    bool
	importWorkers int
	importShow    bool
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// importCmd uploads a batch of emails
var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Upload every email in a file, directory or MBOX file",
	Long: `Upload emails in bulk.

Examples:
  Import one file:    mailtriage import /path/to/file.eml
  Import directory:   mailtriage import /path/to/directory
  Import MBOX:        mailtriage import --mbox /path/to/file.mbox`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importMBOX, "mbox", false, "Treat the path as an MBOX file and upload each message")
	importCmd.Flags().IntVarP(&importWorkers, "workers", "w", 4, "Concurrent uploads")
	importCmd.Flags().BoolVar(&importShow, "show", false, "Print the refreshed tables when done")
}

// uploader is the part of the backend client the importer needs
type uploader interface {
	UploadEmail(ctx context.Context, filename string, content io.Reader) (*models.UploadResult, error)
}

// importSummary counts upload outcomes
type importSummary struct {
	Total        int
	Analyzed     int
	SoftFailures int
	Errors       int
}

// importer uploads emails with bounded concurrency and reports each outcome on out
type importer struct {
	api     uploader
	workers int
	out     io.Writer

	mu      sync.Mutex
	summary importSummary
}

func newImporter(api uploader, workers int, out io.Writer) *importer {
	if workers < 1 {
		workers = 1
	}
	return &importer{api: api, workers: workers, out: out}
}

// importFiles uploads path, or every allowed file below it when path is a directory
func (im *importer) importFiles(ctx context.Context, path string) (importSummary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return importSummary{}, fmt.Errorf("failed to access path: %w", err)
	}

	var files []string
	switch {
	case info.IsDir():
		files, err = emails.FindFiles(path, emails.AllowedExtensions...)
		if err != nil {
			return importSummary{}, fmt.Errorf("failed to scan directory: %w", err)
		}
	case emails.HasAllowedExtension(path):
		files = []string{path}
	default:
		return importSummary{}, fmt.Errorf("invalid file type, expected %s or a directory",
			strings.Join(emails.AllowedExtensions, ", "))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, file := range files {
		g.Go(func() error {
			content, err := os.ReadFile(file)
			if err != nil {
				im.record(file, nil, err)
				return nil
			}
			im.upload(gctx, filepath.Base(file), content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return im.result(), err
	}
	return im.result(), ctx.Err()
}

// importMBOXFile uploads each message of an MBOX file as <name>-NNNN.eml
func (im *importer) importMBOXFile(ctx context.Context, path string) (importSummary, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	splitErr := emails.SplitMBOXFile(path, func(index int, raw []byte, _ emails.MBOXProgress) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		name := fmt.Sprintf("%s-%04d.eml", base, index+1)
		g.Go(func() error {
			im.upload(gctx, name, raw)
			return nil
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return im.result(), err
	}
	return im.result(), splitErr
}

func (im *importer) upload(ctx context.Context, name string, content []byte) {
	result, err := im.api.UploadEmail(ctx, name, bytes.NewReader(content))
	im.record(name, result, err)
}

func (im *importer) record(name string, result *models.UploadResult, err error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.summary.Total++
	switch {
	case err != nil:
		im.summary.Errors++
		fmt.Fprintf(im.out, "%s %s: %v\n", errorStyle.Render("error"), name, err)
	case result.Failed():
		im.summary.SoftFailures++
		fmt.Fprintf(im.out, "%s %s: stored, analysis failed: %s\n", warnStyle.Render("warn "), name, result.FailureDetails())
	default:
		im.summary.Analyzed++
		fmt.Fprintf(im.out, "%s %s: %s\n", okStyle.Render("ok   "), name, result.Verdict)
	}
}

func (im *importer) result() importSummary {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.summary
}

func runImport(cmd *cobra.Command, args []string) error {
	s := newSession()
	im := newImporter(s.client, importWorkers, cmd.OutOrStdout())

	var (
		summary importSummary
		err     error
	)
	if importMBOX {
		summary, err = im.importMBOXFile(cmd.Context(), args[0])
	} else {
		summary, err = im.importFiles(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d emails: %d analyzed, %d analysis failures, %d errors\n",
		summary.Total, summary.Analyzed, summary.SoftFailures, summary.Errors)

	if importShow {
		_ = s.loader.Reload(cmd.Context())
		if err := console.RenderTerminal(cmd.OutOrStdout(), s.view.Snapshot()); err != nil {
			return err
		}
	}
	if summary.Errors > 0 {
		return fmt.Errorf("%d of %d uploads failed", summary.Errors, summary.Total)
	}
	return nil
}
