package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"ewintr.nl/vidqa/detect"
	"ewintr.nl/vidqa/handler"
	"ewintr.nl/vidqa/process"
	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		a.cleanup(ctx)

		port := cfg.APIPort
		if p, _ := cmd.Flags().GetInt("port"); p > 0 {
			port = p
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler.NewServer(a.deps, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			errc <- srv.ListenAndServe()
		}()
		logger.Info("http server started", slog.Int("port", port))

		select {
		case err := <-errc:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("service stopped")
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server on stdio",
	Long: `Run a Model Context Protocol server that exposes the video operations as
tools: detect_youtube_urls, process_youtube_video, get_youtube_transcript,
get_youtube_summary and ask_youtube_question.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		a.cleanup(ctx)

		logger.Info("mcp server started on stdio")
		err = handler.NewMCPServer(a.deps, version, logger).Serve(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var detectCmd = &cobra.Command{
	Use:     "detect <text>",
	Short:   "List the YouTube videos referenced in a text",
	Example: `  vidqa detect "have a look at https://youtu.be/dQw4w9WgXcQ"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(detect.Detect(strings.Join(args, " ")))
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <url|id>",
	Short: "Summarize a YouTube video",
	Example: `  vidqa summary "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
  vidqa summary dQw4w9WgXcQ`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := detect.VideoID(args[0])
		if !ok {
			return fmt.Errorf("%q does not look like a YouTube URL or video id", args[0])
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		stop := spinner("summarizing")
		res, err := a.deps.Summarizer.GetOrCreate(ctx, id)
		stop()
		switch {
		case errors.Is(err, process.ErrProcessing):
			return fmt.Errorf("video %s is being processed elsewhere, try again shortly", id)
		case err != nil:
			return err
		}

		out := res.Text
		if res.Reduced {
			out = "_No transcript available, summary is based on the video details only._\n\n" + out
		}
		return printMarkdown(cmd.OutOrStdout(), out)
	},
}

var askCmd = &cobra.Command{
	Use:     "ask <url|id> <question>",
	Short:   "Ask a question about a YouTube video",
	Example: `  vidqa ask dQw4w9WgXcQ "What is the song about?"`,
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := detect.VideoID(args[0])
		if !ok {
			return fmt.Errorf("%q does not look like a YouTube URL or video id", args[0])
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		stop := spinner("thinking")
		q, err := a.deps.Processor.Enrich(ctx, process.Question{VideoID: id, Text: strings.Join(args[1:], " ")})
		var answer process.Answer
		if err == nil {
			answer, err = a.deps.Session.Ask(ctx, q)
		}
		stop()
		if err != nil {
			return err
		}

		out := answer.Text
		if answer.RelatedTimestamp != nil {
			out += fmt.Sprintf("\n\n%s&t=%ds", detect.WatchURL(id), *answer.RelatedTimestamp)
		}
		return printMarkdown(cmd.OutOrStdout(), out)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on, overrides api_port")
	rootCmd.AddCommand(serveCmd, mcpCmd, detectCmd, summaryCmd, askCmd)
}

// spinner shows progress on stderr while a slow call runs. The returned
// function stops it.
func spinner(description string) func() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				bar.Finish()
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// printMarkdown renders md for the terminal, or writes it as is when stdout
// is not a terminal.
func printMarkdown(w io.Writer, md string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		_, err := fmt.Fprintln(w, md)
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("creating terminal renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	_, err = fmt.Fprint(w, out)
	return err
}
