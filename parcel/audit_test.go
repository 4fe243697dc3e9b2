package parcel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/parcel/store"
)

func TestChangeSet_TracksOnlyRealChanges(t *testing.T) {
	var cs parcel.ChangeSet
	name, note := "old", "same"

	newName, sameNote := "new", "same"
	assert.True(t, parcel.Track(&cs, "name", &name, &newName))
	assert.False(t, parcel.Track(&cs, "note", &note, &sameNote))
	assert.False(t, parcel.Track[string](&cs, "absent", &note, nil))

	w := dec("1.0")
	assert.False(t, parcel.TrackDecimal(&cs, "weight", &w, ptr(dec("1"))))
	assert.True(t, parcel.TrackDecimal(&cs, "weight", &w, ptr(dec("2.5"))))

	assert.Equal(t, []string{"name", "weight"}, cs.Fields())
	assert.Equal(t, "new", name)
	assert.Equal(t, parcel.FieldChange{Field: "weight", Old: "1", New: "2.5"}, cs.Changes()[1])
}

func TestAuditLog_RecordsEntryWithActorAndClock(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx parcel.Store) error {
		_, err := parcel.NewAuditLog(tx, func() time.Time { return fixedNow }).Record(ctx, 3, parcel.ObjectExchange, 9, parcel.ActionUpdate,
			[]parcel.FieldChange{{Field: "exchange_rate", Old: "3500", New: "3600"}})
		return err
	})
	require.NoError(t, err)

	logs, err := parcel.View(ctx, mem, func(tx parcel.Store) ([]parcel.ChangeLog, error) {
		return tx.ChangeLogs(ctx, parcel.ChangeLogFilter{ObjectType: parcel.ObjectExchange, ObjectID: 9})
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, parcel.UserID(3), logs[0].UserID)
	assert.Equal(t, parcel.ActionUpdate, logs[0].Action)
	assert.Equal(t, fixedNow, logs[0].CreatedAt)
}

func TestErrors_KindAndClassification(t *testing.T) {
	tests := []struct {
		err       error
		kind      string
		client    bool
		retryable bool
	}{
		{parcel.NotFound("shipment", 1), "not_found", false, false},
		{&parcel.InvalidStateError{Entity: "shipment", ID: 1, Reason: "x"}, "invalid_state", true, false},
		{&parcel.InsufficientFundsError{UserID: 1}, "insufficient_funds", true, false},
		{parcel.InvalidArgument("weight", "negative"), "invalid_argument", true, false},
		{&parcel.ForbiddenError{Actor: 1, Action: "read"}, "forbidden", true, false},
		{parcel.Unavailable("query", errors.New("conn reset")), "unavailable", false, true},
		{errors.New("plain"), "internal", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.kind, parcel.Kind(tt.err))
			assert.Equal(t, tt.client, parcel.IsClientError(tt.err))
			assert.Equal(t, tt.retryable, parcel.IsRetryable(tt.err))
		})
	}
}

func TestUnavailable_PassesDomainErrorsThrough(t *testing.T) {
	nf := parcel.NotFound("shipment", 1)
	assert.Same(t, nf, parcel.Unavailable("query", nf))
	assert.Nil(t, parcel.Unavailable("query", nil))

	cause := errors.New("disk full")
	wrapped := parcel.Unavailable("insert", cause)
	assert.ErrorIs(t, wrapped, parcel.ErrUnavailable)
	assert.ErrorIs(t, wrapped, cause)
}

func TestInvalidStateError_RendersExpectedAndActual(t *testing.T) {
	err := &parcel.InvalidStateError{
		Entity: "shipment", ID: 4, Field: "weight",
		Reason: "weight must be positive", Expected: "> 0", Actual: "0",
	}
	assert.Equal(t, "shipment 4: weight must be positive (weight: expected > 0, got 0)", err.Error())
}

func TestValidate_ReportsFirstFailure(t *testing.T) {
	type input struct {
		Name string `validate:"required"`
	}
	err := parcel.Validate(input{})

	var arg *parcel.InvalidArgumentError
	require.ErrorAs(t, err, &arg)
	assert.Equal(t, "Name", arg.Field)
	assert.Equal(t, "failed required", arg.Reason)
}

func TestDeps_DefaultsAndNoopLocker(t *testing.T) {
	deps := parcel.Deps{}.Defaults()
	require.NotNil(t, deps.Log)
	require.NotNil(t, deps.Now)
	_, isLogger := deps.Log.(*logrus.Logger)
	assert.True(t, isLogger)

	release, err := deps.Acquire(context.Background(), "shipment:1")
	require.NoError(t, err)
	release()
}

func ptr[T any](v T) *T { return &v }
