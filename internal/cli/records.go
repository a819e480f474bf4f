package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/revkit/internal/revision"
	"github.com/roach88/revkit/internal/value"
)

// RecordView is the output shape of one record revision.
type RecordView struct {
	ID       int64          `json:"id"`
	Type     string         `json:"type"`
	Label    string         `json:"label,omitempty"`
	Revision int64          `json:"revision"`
	State    string         `json:"state"`
	Editable bool           `json:"editable"`
	Fields   map[string]any `json:"fields"`

	fields value.Object
}

func newRecordView(r *revision.Revisionable) RecordView {
	fields := r.Storage().Fields()
	return RecordView{
		ID:       r.ID(),
		Type:     r.Type().Name(),
		Label:    r.Label(),
		Revision: r.Revision(),
		State:    r.State(),
		Editable: r.IsEditable(),
		Fields:   value.ToAny(fields).(map[string]any),
		fields:   fields,
	}
}

func (v RecordView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d", v.Type, v.ID)
	if v.Label != "" {
		fmt.Fprintf(&b, " %q", v.Label)
	}
	fmt.Fprintf(&b, " revision %d [%s]", v.Revision, v.State)
	if !v.Editable {
		b.WriteString(" (read-only)")
	}
	for _, k := range v.fields.SortedKeys() {
		fmt.Fprintf(&b, "\n  %s: %s", k, value.Format(v.fields[k]))
	}
	return b.String()
}

// EditView reports the outcome of an edit session.
type EditView struct {
	Record    RecordView `json:"record"`
	Committed bool       `json:"committed"`
	Outcome   string     `json:"outcome"`
}

func (v EditView) String() string {
	return fmt.Sprintf("%s\n%s", v.Outcome, v.Record)
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <type> [field=value...]",
		Short: "Create a record",
		Long: `Create a record of the given type. Revision 1 is written with the
assigned fields plus declared defaults and generated values.

Example:
  revctl create article label="Release notes" priority=2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			fields, err := parseAssignments(args[1:])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeUsage, err)
			}

			e, err := rootOpts.openEnv(cmd, f)
			if err != nil {
				return err
			}
			defer e.close()

			coll, err := e.collectionOf(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeSchema, err)
			}
			r, err := coll.CreateNewRecord(cmd.Context(), fields, e.author, e.author)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeGeneric, err)
			}
			return f.Success(newRecordView(r))
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var rev int64
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the current or a selected revision of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeUsage, err)
			}

			e, err := rootOpts.openEnv(cmd, f)
			if err != nil {
				return err
			}
			defer e.close()

			_, r, err := loadRecord(cmd, e, id, rev)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeGeneric, err)
			}
			return f.Success(newRecordView(r))
		},
	}
	cmd.Flags().Int64Var(&rev, "revision", 0, "revision to show (default current)")
	return cmd
}

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Revision int64
	State    string
	Comments string
	Simulate bool
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <id> [field=value...]",
		Short: "Edit a record in one session",
		Long: `Run one edit session on a record: assign fields, optionally request a
state, then save. A new revision is written only if something changed.

With --simulate the revision is computed and rolled back.

Example:
  revctl edit 12 content="new body" --comments "typo"
  revctl edit 12 --state active`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, cmd, args)
		},
	}

	cmd.Flags().Int64Var(&opts.Revision, "revision", 0, "edit starting from this revision (default current)")
	cmd.Flags().StringVar(&opts.State, "state", "", "request a manual transition to this state")
	cmd.Flags().StringVar(&opts.Comments, "comments", "", "revision comments")
	cmd.Flags().BoolVar(&opts.Simulate, "simulate", false, "compute the revision without saving it")
	return cmd
}

func runEdit(opts *EditOptions, cmd *cobra.Command, args []string) error {
	f := opts.formatter(cmd)
	id, err := parseID(args[0])
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	fields, err := parseAssignments(args[1:])
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	if len(fields) == 0 && opts.State == "" {
		return f.Fail(ExitCommandError, ErrCodeUsage, fmt.Errorf("nothing to edit: assign a field or pass --state"))
	}

	e, err := opts.openEnv(cmd, f)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	coll, r, err := loadRecord(cmd, e, id, opts.Revision)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, err)
	}
	if opts.Simulate {
		coll.SetSimulation(true)
	}

	if err := r.StartCurrentUserTransaction(ctx, opts.Comments); err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, err)
	}
	if err := applyEdit(r, fields, opts.State); err != nil {
		if rbErr := r.RollBackTransaction(ctx); rbErr != nil {
			e.logger.Warn("roll back failed", "record_id", id, "error", rbErr)
		}
		return f.Fail(ExitFailure, ErrCodeGeneric, err)
	}
	committed, err := r.Save(ctx)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, err)
	}
	return f.Success(EditView{
		Record:    newRecordView(r),
		Committed: committed,
		Outcome:   r.LastOutcome().String(),
	})
}

func applyEdit(r *revision.Revisionable, fields map[string]any, state string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := r.SetCustomKey(k, fields[k]); err != nil {
			return err
		}
	}
	if state != "" {
		return r.SetState(state)
	}
	return nil
}

// loadRecord binds record id and selects rev when it is set.
func loadRecord(cmd *cobra.Command, e *env, id, rev int64) (*revision.Collection, *revision.Revisionable, error) {
	coll, err := e.collectionFor(cmd.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	r, err := coll.GetByID(cmd.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	if rev > 0 {
		if err := r.SelectRevision(cmd.Context(), rev); err != nil {
			return nil, nil, err
		}
	}
	return coll, r, nil
}
