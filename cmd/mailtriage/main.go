package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailtriage/internal/backend"
	"mailtriage/internal/config"
	"mailtriage/internal/console"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	backendURL string
	timeout    time.Duration
	verbose    bool
	apiToken   string
)

// rootCmd is the terminal rendition of the console
var rootCmd = &cobra.Command{
	Use:   "mailtriage",
	Short: "Inspect, upload and delete emails held by the analysis backend",
	Long: `mailtriage talks to the email analysis backend the same way the web console does.

Available subcommands:
  list   - Show the parsed and raw email tables
  upload - Upload one .eml or .arf file for parsing and analysis
  delete - Delete a parsed email after confirmation
  import - Upload every email found in a directory or MBOX file`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// session is one console instance bound to the backend
type session struct {
	client      *backend.Client
	view        *console.View
	loader      *console.Loader
	coordinator *console.Coordinator
	logger      zerolog.Logger
}

func newSession() *session {
	logger := cfg.SetupLogger("cli").Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if !verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	client := backend.NewClient(backendURL, &http.Client{Timeout: timeout}).WithToken(apiToken)
	view := console.NewView()
	loader := console.NewLoader(client, view, cfg.Location(), logger)
	return &session{
		client:      client,
		view:        view,
		loader:      loader,
		coordinator: console.NewCoordinator(client, loader, view, logger),
		logger:      logger,
	}
}

// printNotice writes the current notice, if any
func (s *session) printNotice(cmd *cobra.Command) {
	if n := console.RenderNotice(s.view.Notice()); n != "" {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
}

func init() {
	cfg = config.Load()

	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", cfg.BackendURL, "Backend base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout",
		time.Duration(cfg.AnalysisTimeout)*time.Second+30*time.Second, "Per request timeout")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", cfg.APIToken, "Bearer token for upload and delete (defaults to API_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	rootCmd.AddCommand(listCmd, uploadCmd, deleteCmd, importCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
