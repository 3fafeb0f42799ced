package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/splax/logscribe/internal/ingest"
	"github.com/splax/logscribe/internal/parser"
	"github.com/splax/logscribe/pkg/logger"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "logscribe",
		Short: "Detect, normalize and upload log files",
		Long: `logscribe reads a local log file and runs it through the same parsers the
API uses for uploads. Lines may mix Python logging, Apache access log and JSON formats.

Run 'logscribe login' once to use the upload, status and search commands against a server.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("log-level", "warn", "diagnostic log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		detectCmd(),
		parseCmd(),
		loginCmd(),
		uploadCmd(),
		statusCmd(),
		searchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect FILE",
		Short: "Print the format label sniffed from the first lines of FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readFile(args[0])
			if err != nil {
				return err
			}
			return runDetect(cmd.OutOrStdout(), lines)
		},
	}
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Normalize every line of FILE and report parsed and skipped counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			levelName, _ := cmd.Flags().GetString("log-level")
			log := logger.NewWithWriter(cmd.ErrOrStderr(), "logscribe", logger.ParseLevel(levelName))

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			batch, err := ingest.NewPipeline(nil).ParseReader(f)
			if err != nil {
				return err
			}
			log.Debug("file parsed", "path", args[0], "parsed", batch.Parsed, "skipped", batch.Skipped)
			return writeBatch(cmd.OutOrStdout(), batch, format)
		},
	}
	cmd.Flags().StringP("format", "f", "text", "output format (text, json)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "logscribe %s\n", version)
		},
	}
}

func readFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lines, _, err := ingest.ReadLines(f)
	return lines, err
}

func runDetect(w io.Writer, lines []string) error {
	id, ok := parser.Default().DetectFormat(lines)
	if !ok {
		return fmt.Errorf("no known format in the first lines")
	}
	_, err := fmt.Fprintln(w, id)
	return err
}

type recordJSON struct {
	Timestamp        string         `json:"timestamp"`
	Level            string         `json:"log_level"`
	Source           string         `json:"source"`
	Message          string         `json:"message"`
	AdditionalFields map[string]any `json:"additional_fields"`
}

type summaryJSON struct {
	Format  string `json:"format,omitempty"`
	Parsed  int    `json:"parsed"`
	Skipped int    `json:"skipped"`
}

func writeBatch(w io.Writer, batch ingest.Batch, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		for _, rec := range batch.Records {
			if err := enc.Encode(recordJSON{
				Timestamp:        rec.Timestamp.Format(time.RFC3339Nano),
				Level:            rec.Level,
				Source:           rec.Source,
				Message:          rec.Message,
				AdditionalFields: rec.ExtraFields,
			}); err != nil {
				return err
			}
		}
		return enc.Encode(summaryJSON{Format: batch.Format, Parsed: batch.Parsed, Skipped: batch.Skipped})
	case "text":
		for _, rec := range batch.Records {
			if _, err := fmt.Fprintf(w, "%s %-7s [%s] %s\n", rec.Timestamp.Format(time.RFC3339), rec.Level, rec.Source, rec.Message); err != nil {
				return err
			}
		}
		label := batch.Format
		if label == "" {
			label = "unknown"
		}
		_, err := fmt.Fprintf(w, "format=%s parsed=%d skipped=%d\n", label, batch.Parsed, batch.Skipped)
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
