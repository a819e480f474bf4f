package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// DeleteView reports what a delete command did.
type DeleteView struct {
	RecordID    int64      `json:"record_id"`
	Action      string     `json:"action"` // "scheduled" | "destroyed" | "cancelled"
	DeleteAfter *time.Time `json:"delete_after,omitempty"`
}

func (v DeleteView) String() string {
	if v.DeleteAfter != nil {
		return fmt.Sprintf("record #%d deletion scheduled for %s", v.RecordID, v.DeleteAfter.Format(time.RFC3339))
	}
	return fmt.Sprintf("record #%d %s", v.RecordID, v.Action)
}

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Now    bool
	Cancel bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Schedule, cancel or force the deletion of a record",
		Long: `Schedule a record for destruction after the configured deletion delay.
Scheduled records are removed by purge once the delay has passed.

Example:
  revctl delete 12
  revctl delete 12 --cancel
  revctl delete 12 --now`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Now, "now", false, "destroy the record immediately")
	cmd.Flags().BoolVar(&opts.Cancel, "cancel", false, "cancel a scheduled deletion")
	cmd.MarkFlagsMutuallyExclusive("now", "cancel")
	return cmd
}

func runDelete(opts *DeleteOptions, cmd *cobra.Command, arg string) error {
	f := opts.formatter(cmd)
	id, err := parseID(arg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	e, err := opts.openEnv(cmd, f)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	coll, err := e.collectionFor(ctx, id)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, err)
	}

	switch {
	case opts.Cancel:
		if err := coll.CancelDeletion(ctx, id); err != nil {
			return f.Fail(ExitFailure, ErrCodeGeneric, err)
		}
		return f.Success(DeleteView{RecordID: id, Action: "cancelled"})
	case opts.Now:
		if err := coll.Destroy(ctx, id); err != nil {
			return f.Fail(ExitFailure, ErrCodeGeneric, err)
		}
		return f.Success(DeleteView{RecordID: id, Action: "destroyed"})
	}

	due, err := coll.ScheduleDeletion(ctx, id)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, err)
	}
	if exists, err := coll.Exists(ctx, id); err == nil && !exists {
		return f.Success(DeleteView{RecordID: id, Action: "destroyed"})
	}
	return f.Success(DeleteView{RecordID: id, Action: "scheduled", DeleteAfter: &due})
}

// PurgeView lists the records destroyed by purge, per type.
type PurgeView struct {
	Purged map[string][]int64 `json:"purged"`
	Total  int                `json:"total"`
}

func (v PurgeView) String() string {
	if v.Total == 0 {
		return "nothing to purge"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "purged %d record(s)", v.Total)
	types := make([]string, 0, len(v.Purged))
	for typ := range v.Purged {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		if ids := v.Purged[typ]; len(ids) > 0 {
			fmt.Fprintf(&b, "\n  %s: %v", typ, ids)
		}
	}
	return b.String()
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Destroy records whose scheduled deletion is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			e, err := rootOpts.openEnv(cmd, f)
			if err != nil {
				return err
			}
			defer e.close()

			view := PurgeView{Purged: map[string][]int64{}}
			for _, name := range e.registry.Names() {
				coll, err := e.collectionOf(name)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeSchema, err)
				}
				ids, err := coll.PurgeExpired(cmd.Context())
				view.Purged[name] = ids
				view.Total += len(ids)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeDatabase, err)
				}
				f.VerboseLog("%s: purged %d", name, len(ids))
			}
			return f.Success(view)
		},
	}
}
