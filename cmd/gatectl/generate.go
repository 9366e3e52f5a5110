package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/quillgate/internal/app"
	"github.com/yungbote/quillgate/internal/modules/narrative"
	"github.com/yungbote/quillgate/internal/modules/narrative/generation"
)

var (
	genSystemFile string
	genPrompt     string
	genCandidates int
	retryLimit    int
)

var generateCmd = &cobra.Command{
	Use:   "generate [chapter-id]",
	Short: "Run the generate and validate loop for a chapter",
	Long: `Drafts a chapter with the configured model, validating each draft and
retrying with a directive until one passes or attempts run out. With
--candidates N > 0 a single fan-out round of N drafts is persisted instead.

Requires OPENAI_API_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapterID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid chapter id: %w", err)
		}
		system := ""
		if genSystemFile != "" {
			if system, err = readFileArg(genSystemFile); err != nil {
				return err
			}
		}
		var conv []generation.Message
		if genPrompt != "" {
			conv = append(conv, generation.Message{Role: "user", Content: genPrompt})
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			var out narrative.GenerateOutcome
			if genCandidates > 0 {
				out, err = a.Narrative.GenerateCandidates(cmd.Context(), narrative.GenerateFanOutInput{
					ChapterID:    chapterID,
					SystemPrompt: system,
					Conversation: conv,
					Candidates:   genCandidates,
				})
			} else {
				out, err = a.Narrative.Generate(cmd.Context(), narrative.GenerateInput{
					ChapterID:    chapterID,
					SystemPrompt: system,
					Conversation: conv,
				})
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd, outcomeJSON(out)); err != nil {
				return err
			}
			if !out.Accepted() {
				return exitCodeError{code: 2}
			}
			return nil
		})
	},
}

var vectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Vector index maintenance",
}

var vectorsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-ingest finalized versions flagged for vector retry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			results, err := a.Narrative.RetryVectors(cmd.Context(), retryLimit)
			if err != nil {
				return err
			}
			out := make([]map[string]any, 0, len(results))
			for _, r := range results {
				item := map[string]any{"version_id": r.VersionID, "status": r.Status, "reason": r.Reason}
				if r.Err != nil {
					item["error"] = r.Err.Error()
				}
				out = append(out, item)
			}
			return printJSON(cmd, out)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return withApp(ctx, func(a *app.App) error {
			return a.Server().Run(ctx, a.Cfg.HTTPAddr)
		})
	},
}

// outcomeJSON flattens the error field so it survives encoding.
func outcomeJSON(out narrative.GenerateOutcome) map[string]any {
	m := map[string]any{
		"state":    out.State,
		"attempts": out.Attempts,
	}
	if out.Reason != "" {
		m["reason"] = out.Reason
	}
	if out.LastResult != nil {
		m["last_result"] = out.LastResult
	}
	if out.Version != nil {
		m["version"] = out.Version
	}
	if out.Review != nil {
		m["review"] = out.Review
	}
	if len(out.Candidates) > 0 {
		cands := make([]map[string]any, 0, len(out.Candidates))
		for _, c := range out.Candidates {
			cands = append(cands, map[string]any{"index": c.Index, "content_hash": c.Hash, "result": c.Result, "version": c.Version})
		}
		m["candidates"] = cands
	}
	if out.Err != nil {
		m["error"] = out.Err.Error()
	}
	return m
}

func init() {
	rootCmd.AddCommand(generateCmd, vectorsCmd, serveCmd)
	vectorsCmd.AddCommand(vectorsRetryCmd)

	generateCmd.Flags().StringVar(&genSystemFile, "system-file", "", "System prompt file")
	generateCmd.Flags().StringVar(&genPrompt, "prompt", "", "User turn appended to the conversation")
	generateCmd.Flags().IntVar(&genCandidates, "candidates", 0, "Fan-out candidate count; 0 runs the retry loop")
	vectorsRetryCmd.Flags().IntVar(&retryLimit, "limit", 50, "Maximum versions to retry")
}
