package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/splax/logscribe/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain an access token and store it in the user config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			apiBase, _ := cmd.Flags().GetString("api")
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				secret, err := promptPassword(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = secret
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(apiBase) != "" {
				cfg.APIBaseURL = apiBase
			}
			client, err := apiclient.New(cfg.APIBaseURL)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			tok, err := client.Login(ctx, username, password)
			if err != nil {
				return err
			}
			cfg.AccessToken = tok.AccessToken
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "login successful")
			return nil
		},
	}
	cmd.Flags().StringP("username", "u", "", "account username")
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	cmd.Flags().String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	return cmd
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload FILE for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, _ := cmd.Flags().GetBool("wait")
			client, cfg, err := remoteClient()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			accepted, err := client.Upload(cmd.Context(), cfg.AccessToken, args[0], f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upload %d %s\n", accepted.UploadID, accepted.Status)
			if !wait {
				return nil
			}
			st, err := client.WaitForUpload(cmd.Context(), cfg.AccessToken, accepted.UploadID, time.Second)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().Bool("wait", false, "poll until ingestion finishes")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status UPLOAD_ID",
		Short: "Show ingestion status of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid upload id %q", args[0])
			}
			client, cfg, err := remoteClient()
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context(), cfg.AccessToken, id)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [TEXT]",
		Short: "Search ingested entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q apiclient.SearchQuery
			if len(args) == 1 {
				q.Text = args[0]
			}
			q.Level, _ = cmd.Flags().GetString("level")
			q.Source, _ = cmd.Flags().GetString("source")
			q.UploadID, _ = cmd.Flags().GetInt64("upload")
			q.Page, _ = cmd.Flags().GetInt("page")
			q.PerPage, _ = cmd.Flags().GetInt("per-page")

			client, cfg, err := remoteClient()
			if err != nil {
				return err
			}
			page, err := client.Search(cmd.Context(), cfg.AccessToken, q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range page.Logs {
				fmt.Fprintf(out, "%s %-7s [%s] %s\n", e.Timestamp, e.Level, e.Source, e.Message)
			}
			fmt.Fprintf(out, "page %d, %d of %d matches\n", page.Page, len(page.Logs), page.Total)
			return nil
		},
	}
	cmd.Flags().String("level", "", "severity filter")
	cmd.Flags().String("source", "", "exact source filter")
	cmd.Flags().Int64("upload", 0, "restrict to one upload")
	cmd.Flags().Int("page", 0, "page number")
	cmd.Flags().Int("per-page", 0, "page size")
	return cmd
}

func printStatus(w io.Writer, st apiclient.UploadStatus) error {
	format := st.Format
	if format == "" {
		format = "unknown"
	}
	_, err := fmt.Fprintf(w, "upload %d %s format=%s parsed=%d skipped=%d\n", st.UploadID, st.Status, format, st.ParsedLines, st.SkippedLines)
	return err
}

func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(w, "Password: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}

func remoteClient() (*apiclient.Client, cliConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cliConfig{}, err
	}
	if cfg.AccessToken == "" {
		return nil, cliConfig{}, errors.New("not logged in; run 'logscribe login' first")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, cliConfig{}, err
	}
	return client, cfg, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: apiclient.DefaultBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = apiclient.DefaultBaseURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("LOGSCRIBE_CONFIG")); p != "" {
		return p, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "logscribe", "config.json"), nil
}
