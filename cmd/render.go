package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/glance/internal/config"
	"github.com/conneroisu/glance/internal/delivery"
	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/reader"
	"github.com/conneroisu/glance/internal/renderer"
	"github.com/conneroisu/glance/internal/session"
	"github.com/conneroisu/glance/internal/types"
	"github.com/conneroisu/glance/internal/watcher"
)

const (
	formatHTML = "html"
	formatANSI = "ansi"
)

type renderOptions struct {
	format string
	watch  bool
	width  int
}

func newRenderCmd() *cobra.Command {
	opts := renderOptions{}

	renderCmd := &cobra.Command{
		Use:     "render <file>",
		Aliases: []string{"r"},
		Short:   "Render a document to standard output",
		Long: `Render a markdown document to standard output, as HTML or as styled
terminal text.

Examples:
  glance render README.md                         # HTML
  glance render README.md --format ansi           # Terminal output
  glance render README.md --format ansi --watch   # Re-render on every change`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], opts)
		},
	}

	renderCmd.Flags().StringVarP(&opts.format, "format", "f", formatHTML, "Output format (html, ansi)")
	renderCmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep watching and print every new rendering")
	renderCmd.Flags().IntVar(&opts.width, "width", 80, "Word wrap width for ansi output")

	return renderCmd
}

func runRender(cmd *cobra.Command, path string, opts renderOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	r, err := newRenderer(cfg, opts)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, 0, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	rd := reader.New(
		reader.WithAttempts(cfg.Watch.ReadAttempts),
		reader.WithBackoff(cfg.Watch.ReadBackoff),
		reader.WithLogger(logger),
	)
	out := cmd.OutOrStdout()

	if !opts.watch {
		text, err := rd.Read(cmd.Context(), path)
		if err != nil {
			return err
		}
		res := r.Render(text)
		if res.Failed() {
			return errors.NewRenderError(errors.New(res.Message)).WithPath(path)
		}
		_, err = io.WriteString(out, res.Body())
		return err
	}

	backend, err := watcher.ParseBackend(cfg.Watch.Backend)
	if err != nil {
		return err
	}
	opener, err := watcher.NewOpener(backend, watcher.Options{PollInterval: cfg.Watch.PollInterval, Logger: logger})
	if err != nil {
		return err
	}

	sess := session.New(types.NewWatchTarget(path, cfg.Render.Dangerous), session.Dependencies{
		Source:   opener,
		Reader:   rd,
		Renderer: r,
		Ignore:   cfg.Watch.Ignore,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := delivery.New(delivery.DefaultCapacity)
	defer results.Close()

	if err := sess.Start(ctx, results); err != nil {
		return err
	}

	for res := range results.Results() {
		if err := printResult(out, res, opts.format); err != nil {
			return err
		}
	}

	return sess.Err()
}

func newRenderer(cfg *config.Config, opts renderOptions) (renderer.Renderer, error) {
	switch opts.format {
	case formatHTML:
		return renderer.NewMarkdown(renderer.Options{Dangerous: cfg.Render.Dangerous, Emoji: cfg.Render.Emoji}), nil
	case formatANSI:
		return renderer.NewTerminal(opts.width)
	default:
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("unsupported format: %s (supported: %s, %s)", opts.format, formatHTML, formatANSI))
	}
}

// printResult writes one rendering of a watched document. Terminal output
// starts each rendering on a cleared screen.
func printResult(w io.Writer, res types.RenderResult, format string) error {
	var err error
	switch {
	case format == formatANSI && res.Failed():
		_, err = fmt.Fprintf(w, "\x1b[H\x1b[2J\x1b[1;31merror:\x1b[0m %s\n", res.Message)
	case format == formatANSI:
		_, err = fmt.Fprintf(w, "\x1b[H\x1b[2J%s", res.Body())
	default:
		_, err = fmt.Fprintf(w, "<!-- update %d -->\n%s\n", res.Seq, res.Body())
	}
	return err
}
