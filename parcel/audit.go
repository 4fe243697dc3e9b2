package parcel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AUDIT LOG - append-only field-level change records
// =============================================================================

// AuditLog writes ChangeLog entries. It compares nothing: callers build
// the diff with a ChangeSet and hand it over.
type AuditLog struct {
	store ChangeLogStore
	now   Clock
}

func NewAuditLog(store ChangeLogStore, now Clock) *AuditLog {
	if now == nil {
		now = time.Now
	}
	return &AuditLog{store: store, now: now}
}

// Record appends one entry. The only failure mode is storage.
func (a *AuditLog) Record(ctx context.Context, actor UserID, objectType ObjectType, objectID uint64, action Action, changes []FieldChange) (*ChangeLog, error) {
	entry := &ChangeLog{
		UserID:     actor,
		ObjectType: objectType,
		ObjectID:   objectID,
		Action:     action,
		Changes:    changes,
		CreatedAt:  a.now(),
	}
	if err := a.store.AppendChangeLog(ctx, entry); err != nil {
		return nil, Unavailable("append change log", err)
	}
	return entry, nil
}

// =============================================================================
// CHANGE SET - ordered diff builder
// =============================================================================

type ChangeSet struct {
	changes []FieldChange
}

func (c *ChangeSet) Add(field string, old, new any) {
	c.changes = append(c.changes, FieldChange{Field: field, Old: old, New: new})
}

func (c *ChangeSet) Changes() []FieldChange { return c.changes }

func (c *ChangeSet) Empty() bool { return len(c.changes) == 0 }

// Fields lists the changed field names in order.
func (c *ChangeSet) Fields() []string {
	out := make([]string, len(c.changes))
	for i, ch := range c.changes {
		out[i] = ch.Field
	}
	return out
}

// Track assigns *v to *dst and records the change when v is set and differs.
func Track[T comparable](c *ChangeSet, field string, dst *T, v *T) bool {
	if v == nil || *dst == *v {
		return false
	}
	c.Add(field, *dst, *v)
	*dst = *v
	return true
}

// TrackDecimal is Track for decimals, compared by value so 1.0 equals 1.
// Values are recorded in their string form.
func TrackDecimal(c *ChangeSet, field string, dst *decimal.Decimal, v *decimal.Decimal) bool {
	if v == nil || dst.Equal(*v) {
		return false
	}
	c.Add(field, dst.String(), v.String())
	*dst = *v
	return true
}
