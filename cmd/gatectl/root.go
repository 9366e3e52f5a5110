package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/quillgate/internal/app"
)

// exitCodeError carries a non-1 process exit status out of a RunE.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "Chapter quality gate and version ledger",
	Long: `gatectl validates chapter drafts against a narrative context and manages
the chapter version ledger.

Commands that touch the ledger read the same environment as the server
(DB_DRIVER, SQLITE_PATH, POSTGRES_*, REDIS_ADDR, OPENAI_API_KEY, ...).
A .env file in the working directory is loaded when present.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp wires the full application for one command and closes it after.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func readFileArg(path string) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(os.Stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(raw), nil
}
