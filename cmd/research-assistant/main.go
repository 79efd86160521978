package main

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/research-assistant/pkg/clients"
	"github.com/mikeboe/research-assistant/pkg/config"
	"github.com/mikeboe/research-assistant/pkg/research"
	"github.com/mikeboe/research-assistant/pkg/research/tools"
)

var (
	topic   string
	outPath string
	verbose bool
)

func main() {
	// A missing .env is fine as long as the variables are set.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "research-assistant",
		Short: "A terminal-based literature research agent",
		Long: `research-assistant plans a literature search for a topic, researches every
task on arXiv in parallel and writes a structured Markdown report.`,
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	rootCmd.Flags().StringVarP(&outPath, "out", "o", "", "Report file (default report_<unix>.md)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log workflow internals to stderr")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if !cmd.Flags().Changed("topic") {
		fmt.Fprint(cmd.OutOrStdout(), "Enter research topic: ")
		input, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		topic = input
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return research.ErrEmptyTopic
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg := config.Load()
	gen, err := clients.NewGenerator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init generator: %w", err)
	}

	engine, err := research.NewEngine(research.Config{
		SearchMaxResults:   cfg.SearchMaxResults,
		MaxParallel:        cfg.MaxParallel,
		EmitTaskCompletion: true,
	}, gen, tools.NewArxivClient())
	if err != nil {
		return err
	}

	report, err := printProgress(cmd.OutOrStdout(), engine.Stream(ctx, topic))
	if err != nil {
		return err
	}

	if outPath == "" {
		outPath = fmt.Sprintf("report_%d.md", time.Now().Unix())
	}
	if err := os.WriteFile(outPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nReport written to %s\n", outPath)
	return nil
}

// printProgress renders progress events as they arrive and returns the
// final report.
func printProgress(w io.Writer, events iter.Seq2[research.ProgressEvent, error]) (string, error) {
	var report string
	for ev, err := range events {
		if err != nil {
			return "", err
		}
		switch ev.Type {
		case research.EventStatus:
			fmt.Fprintf(w, "» %s\n", ev.Message)
		case research.EventTodoList:
			fmt.Fprintln(w, "Research plan:")
			for _, t := range ev.Tasks {
				fmt.Fprintf(w, "  %d. %s (%s)\n", t.ID, t.Title, t.Query)
			}
		case research.EventTaskStatus:
			if ev.Status == research.TaskStatusCompleted {
				fmt.Fprintf(w, "  ✓ task %d done, %d sources\n", ev.TaskID, len(ev.Sources))
			} else {
				fmt.Fprintf(w, "  … task %d %s\n", ev.TaskID, ev.Status)
			}
		case research.EventFinalReport:
			report = ev.Report
		case research.EventDone:
			fmt.Fprintln(w, "Research finished.")
		}
	}
	if report == "" {
		return "", fmt.Errorf("run ended without a report")
	}
	return report, nil
}
