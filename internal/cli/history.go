package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/revkit/internal/changelog"
	"github.com/roach88/revkit/internal/revision"
	"github.com/roach88/revkit/internal/schema"
)

// LogView is the changelog of one record.
type LogView struct {
	RecordID int64             `json:"record_id"`
	Entries  []changelog.Entry `json:"entries"`
}

func (v LogView) String() string {
	if len(v.Entries) == 0 {
		return fmt.Sprintf("record #%d: no changelog entries", v.RecordID)
	}
	lines := make([]string, len(v.Entries))
	for i, e := range v.Entries {
		lines[i] = e.Describe()
	}
	return strings.Join(lines, "\n")
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Author     string
	ChangeType string
	Revision   int64
	Search     string
	From       string
	To         string
	Ascending  bool
	Limit      int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <id>",
		Short: "Show the changelog of a record",
		Long: `Show the field-level changelog of a record, newest revision first.

Dates for --from and --to are RFC 3339 timestamps or YYYY-MM-DD.

Example:
  revctl log 12 --by alice --search draft
  revctl log 12 --from 2026-01-01 --asc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Author, "by", "", "only entries by this author")
	cmd.Flags().StringVar(&opts.ChangeType, "change-type", "", "only entries of this change type")
	cmd.Flags().Int64Var(&opts.Revision, "revision", 0, "only entries of this revision")
	cmd.Flags().StringVar(&opts.Search, "search", "", "match field names and values")
	cmd.Flags().StringVar(&opts.From, "from", "", "only entries at or after this date")
	cmd.Flags().StringVar(&opts.To, "to", "", "only entries at or before this date")
	cmd.Flags().BoolVar(&opts.Ascending, "asc", false, "oldest revision first")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries")
	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command, arg string) error {
	f := opts.formatter(cmd)
	id, err := parseID(arg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	filter := changelog.Filter{
		AuthorID:   opts.Author,
		ChangeType: opts.ChangeType,
		Revision:   opts.Revision,
		Search:     opts.Search,
		Ascending:  opts.Ascending,
		Limit:      opts.Limit,
	}
	if filter.From, err = parseDateFlag("from", opts.From); err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	if filter.To, err = parseDateFlag("to", opts.To); err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	e, err := opts.openEnv(cmd, f)
	if err != nil {
		return err
	}
	defer e.close()

	_, r, err := loadRecord(cmd, e, id, 0)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, err)
	}
	entries, err := r.Changelog(cmd.Context(), filter)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeDatabase, err)
	}
	return f.Success(LogView{RecordID: id, Entries: entries})
}

func parseDateFlag(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := schema.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

// RevisionsView lists the revisions of one record.
type RevisionsView struct {
	RecordID  int64                   `json:"record_id"`
	Current   int64                   `json:"current"`
	Revisions []revision.RevisionInfo `json:"revisions"`
}

func (v RevisionsView) String() string {
	var b strings.Builder
	for i, info := range v.Revisions {
		if i > 0 {
			b.WriteByte('\n')
		}
		marker := " "
		if info.Revision == v.Current {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s [%s] %s", marker, info.Pretty, info.State, info.AuthorID)
		if info.Comments != "" {
			fmt.Fprintf(&b, ": %s", info.Comments)
		}
	}
	return b.String()
}

// NewRevisionsCommand creates the revisions command.
func NewRevisionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <id>",
		Short: "List the revisions of a record",
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

			_, r, err := loadRecord(cmd, e, id, 0)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeGeneric, err)
			}
			revs, err := r.Revisions(cmd.Context())
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeDatabase, err)
			}
			return f.Success(RevisionsView{RecordID: id, Current: r.Revision(), Revisions: revs})
		},
	}
}
