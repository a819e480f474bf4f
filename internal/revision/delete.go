package revision

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/revkit/internal/query"
	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/store"
)

// ScheduleDeletion marks record id for destruction after the collection's
// deletion delay and returns the due time. A negative delay destroys the
// record immediately.
func (c *Collection) ScheduleDeletion(ctx context.Context, id int64) (time.Time, error) {
	if err := c.requireRecord(ctx, id); err != nil {
		return time.Time{}, err
	}
	rev, err := c.CurrentRevision(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	now := c.now()
	due := now.Add(c.delay)
	ev := RecordEvent{
		Kind:        EventBeforeDelete,
		RecordType:  c.typ.Name(),
		RecordID:    id,
		Revision:    rev,
		DeleteAfter: due,
		At:          now,
	}

	if c.delay < 0 {
		ev.DeleteAfter = now
		c.events.BeforeDelete(ctx, ev)
		return now, c.Destroy(ctx, id)
	}

	if _, err := c.store.UpdateRow(ctx, tablePointers,
		map[string]any{colDeleteAfter: store.FormatTime(due)},
		map[string]any{schema.ColRecordID: id}); err != nil {
		return time.Time{}, fmt.Errorf("schedule deletion of %d: %w", id, err)
	}
	c.logger.Info("record deletion scheduled", "record_id", id, "delete_after", due)
	c.events.BeforeDelete(ctx, ev)
	return due, nil
}

// CancelDeletion clears a pending deletion of record id.
func (c *Collection) CancelDeletion(ctx context.Context, id int64) error {
	if err := c.requireRecord(ctx, id); err != nil {
		return err
	}
	n, err := c.store.UpdateRow(ctx, tablePointers,
		map[string]any{colDeleteAfter: nil},
		map[string]any{schema.ColRecordID: id})
	if err != nil {
		return fmt.Errorf("cancel deletion of %d: %w", id, err)
	}
	if n == 0 {
		return &Error{Code: ErrCodeNoCurrentRevision, Message: "no current revision pointer", RecordType: c.typ.Name(), RecordID: id}
	}
	return nil
}

// DeletionScheduled returns the pending deletion time of record id.
func (c *Collection) DeletionScheduled(ctx context.Context, id int64) (time.Time, bool, error) {
	if err := c.requireRecord(ctx, id); err != nil {
		return time.Time{}, false, err
	}
	row, err := c.store.FetchRow(ctx, tablePointers, map[string]any{schema.ColRecordID: id})
	if isNotFound(err) {
		return time.Time{}, false, &Error{Code: ErrCodeNoCurrentRevision, Message: "no current revision pointer", RecordType: c.typ.Name(), RecordID: id}
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("deletion of %d: %w", id, err)
	}
	raw := row.String(colDeleteAfter)
	if raw == "" {
		return time.Time{}, false, nil
	}
	due, err := store.ParseTime(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return due, true, nil
}

// PurgeExpired destroys every record of this type whose deletion is due
// and returns their IDs.
func (c *Collection) PurgeExpired(ctx context.Context) ([]int64, error) {
	rows, err := c.store.Select(ctx, query.Select{
		From:    tablePointers,
		Columns: []string{schema.ColRecordID},
		Filter: query.And{
			query.IsNotNull{Field: colDeleteAfter},
			query.Lte{Field: colDeleteAfter, Value: store.FormatTime(c.now())},
		},
		OrderBy: []query.Order{query.Asc(schema.ColRecordID)},
	})
	if err != nil {
		return nil, fmt.Errorf("purge %s: %w", c.typ.Name(), err)
	}

	purged := []int64{}
	for _, row := range rows {
		id := row.Int64(schema.ColRecordID)
		ok, err := c.Exists(ctx, id)
		if err != nil {
			return purged, err
		}
		if !ok {
			continue
		}
		if err := c.Destroy(ctx, id); err != nil {
			return purged, err
		}
		purged = append(purged, id)
	}
	return purged, nil
}

// Destroy removes record id with all its revisions, changelog entries and
// its pointer.
func (c *Collection) Destroy(ctx context.Context, id int64) error {
	ok, err := c.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &Error{Code: ErrCodeNoCurrentRevision, Message: "record does not exist", RecordType: c.typ.Name(), RecordID: id}
	}

	owned, err := c.begin(ctx)
	if err != nil {
		return fmt.Errorf("destroy %d: %w", id, err)
	}
	if err := c.destroy(ctx, id); err != nil {
		c.rollback(owned, err)
		return err
	}
	if owned {
		if err := c.store.Commit(); err != nil {
			return fmt.Errorf("destroy %d: %w", id, err)
		}
	}

	c.logger.Info("record destroyed", "record_id", id)
	c.events.RecordDeleted(ctx, RecordEvent{
		Kind:       EventRecordDeleted,
		RecordType: c.typ.Name(),
		RecordID:   id,
		At:         c.now(),
	})
	return nil
}

func (c *Collection) destroy(ctx context.Context, id int64) error {
	// Pointer first: it references revisions.
	if _, err := c.store.DeleteRows(ctx, tablePointers, map[string]any{schema.ColRecordID: id}); err != nil {
		return fmt.Errorf("destroy %d: %w", id, err)
	}
	if _, err := c.changelog.DeleteByRecord(ctx, id); err != nil {
		return fmt.Errorf("destroy %d: %w", id, err)
	}
	if _, err := c.store.DeleteRows(ctx, tableRevisions, map[string]any{schema.ColRecordID: id}); err != nil {
		return fmt.Errorf("destroy %d: %w", id, err)
	}
	if _, err := c.store.DeleteRows(ctx, tableRecords, map[string]any{"id": id}); err != nil {
		return fmt.Errorf("destroy %d: %w", id, err)
	}
	return nil
}

// requireRecord fails with NO_CURRENT_REVISION unless record id exists
// and is of this collection's type.
func (c *Collection) requireRecord(ctx context.Context, id int64) error {
	ok, err := c.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &Error{Code: ErrCodeNoCurrentRevision, Message: "record does not exist", RecordType: c.typ.Name(), RecordID: id}
	}
	return nil
}
