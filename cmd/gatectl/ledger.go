package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/quillgate/internal/app"
	"github.com/yungbote/quillgate/internal/modules/narrative"
)

var (
	createProject string
	createNumber  int
	createTitle   string

	editFile string
	editNote string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and mutate the chapter version ledger",
}

var chapterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a chapter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		projectID, err := uuid.Parse(createProject)
		if err != nil {
			return fmt.Errorf("invalid --project: %w", err)
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			ch, err := a.Narrative.CreateChapter(cmd.Context(), narrative.CreateChapterInput{
				ProjectID:     projectID,
				ChapterNumber: createNumber,
				Title:         createTitle,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, ch)
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit [chapter-id]",
	Short: "Record a manual edit as the chapter's finalized version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapterID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid chapter id: %w", err)
		}
		content, err := readFileArg(editFile)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			res, err := a.Narrative.ManualEdit(cmd.Context(), narrative.ManualEditInput{
				ChapterID: chapterID,
				Content:   content,
				Note:      editNote,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select [chapter-id] [version-id]",
	Short: "Confirm a pending version as the chapter's selection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapterID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid chapter id: %w", err)
		}
		versionID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid version id: %w", err)
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			res, err := a.Narrative.Select(cmd.Context(), narrative.SelectVersionInput{ChapterID: chapterID, VersionID: versionID})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [chapter-id]",
	Short: "Print a chapter with its versions and reviews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapterID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid chapter id: %w", err)
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			hist, err := a.Narrative.History(cmd.Context(), chapterID)
			if err != nil {
				return err
			}
			return printJSON(cmd, hist)
		})
	},
}

func init() {
	chapterCmd := &cobra.Command{Use: "chapter", Short: "Chapter commands"}
	chapterCmd.AddCommand(chapterCreateCmd, editCmd, selectCmd, historyCmd)
	ledgerCmd.AddCommand(chapterCmd)
	rootCmd.AddCommand(ledgerCmd)

	chapterCreateCmd.Flags().StringVar(&createProject, "project", "", "Project UUID")
	chapterCreateCmd.Flags().IntVar(&createNumber, "number", 1, "Chapter number within the project")
	chapterCreateCmd.Flags().StringVar(&createTitle, "title", "", "Chapter title")
	_ = chapterCreateCmd.MarkFlagRequired("project")

	editCmd.Flags().StringVar(&editFile, "file", "", "Edited content file, or - for stdin")
	editCmd.Flags().StringVar(&editNote, "note", "", "Reviewer note stored on the edit's review")
	_ = editCmd.MarkFlagRequired("file")
}
