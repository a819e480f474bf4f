package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// InitView reports the state of an initialized store.
type InitView struct {
	Driver        string   `json:"driver"`
	SchemaVersion int      `json:"schema_version"`
	Types         []string `json:"types"`
}

func (v InitView) String() string {
	types := "none"
	if len(v.Types) > 0 {
		types = strings.Join(v.Types, ", ")
	}
	return fmt.Sprintf("%s store at schema version %d\nrecord types: %s", v.Driver, v.SchemaVersion, types)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the record store",
		Long: `Open the configured database, apply migrations and load the configured
record types. Safe to run on an existing store.

Example:
  revctl init --db records.db --schema types.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			e, err := rootOpts.openEnv(cmd, f)
			if err != nil {
				return err
			}
			defer e.close()

			version, err := e.store.SchemaVersion(cmd.Context())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeDatabase, err)
			}
			driver, _ := e.cfg.Database.DataSource()
			return f.Success(InitView{
				Driver:        driver,
				SchemaVersion: version,
				Types:         e.registry.Names(),
			})
		},
	}
}
