package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/revkit/internal/schema"
)

// ValidateView lists the record types found valid.
type ValidateView struct {
	Files []string `json:"files"`
	Types []string `json:"types"`
}

func (v ValidateView) String() string {
	return fmt.Sprintf("%d file(s) valid, %d type(s): %s", len(v.Files), len(v.Types), strings.Join(v.Types, ", "))
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate record type definitions",
		Long: `Load YAML or CUE record type definitions and check them without
opening a database: field declarations, defaults, generators, states and
transitions. Type names must be unique across all files.

Example:
  revctl validate types/article.yaml types/extra.cue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			reg := schema.NewRegistry()
			for _, path := range args {
				f.VerboseLog("validating %s", path)
				defs, err := schema.LoadFile(path)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeSchema, err)
				}
				if err := reg.RegisterAll(defs); err != nil {
					return f.Fail(ExitFailure, ErrCodeSchema, fmt.Errorf("%s: %w", path, err))
				}
			}
			return f.Success(ValidateView{Files: args, Types: reg.Names()})
		},
	}
}
