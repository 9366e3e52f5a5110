package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/quillgate/internal/modules/narrative/generation"
	"github.com/yungbote/quillgate/internal/modules/narrative/validation"
	"github.com/yungbote/quillgate/internal/normalization"
)

var (
	validateTextPath    string
	validateContextPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a draft against a narrative context",
	Long: `Runs the POV, character introduction and outline checks on a draft and
prints the result as JSON. Exits 2 when the draft must be retried.

Examples:
  gatectl validate --text draft.txt --context chapter.yaml
  cat draft.txt | gatectl validate --text - --context chapter.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

var hashCmd = &cobra.Command{
	Use:   "hash [file]",
	Short: "Print the content hash of a file as stored by the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readFileArg(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), normalization.ContentHash(text))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, hashCmd)
	validateCmd.Flags().StringVar(&validateTextPath, "text", "", "Draft file, or - for stdin")
	validateCmd.Flags().StringVar(&validateContextPath, "context", "", "Narrative context YAML file")
	_ = validateCmd.MarkFlagRequired("text")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	text, err := readFileArg(validateTextPath)
	if err != nil {
		return err
	}
	var nc validation.NarrativeContext
	if validateContextPath != "" {
		raw, err := readFileArg(validateContextPath)
		if err != nil {
			return err
		}
		if nc, err = generation.ParseNarrativeContext([]byte(raw)); err != nil {
			return err
		}
	}
	res := validation.Validate(text, nc)
	if err := printJSON(cmd, res); err != nil {
		return err
	}
	if !res.OK {
		return exitCodeError{code: 2}
	}
	return nil
}
