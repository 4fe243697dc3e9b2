package shipping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/shipping"
)

func codes(list []parcel.Shipment) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Code
	}
	return out
}

func TestReconcile_MergeKeepsUnlistedShipments(t *testing.T) {
	f := newTestFixture(t)
	c, _ := f.consignment("2", "A", "B")

	res, err := f.reconciler.Reconcile(f.ctx, c.ID, []string{"B", "C"}, shipping.AttributesOf(*c), ownerID, shipping.MergeCodes)

	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, codes(res.Created))
	assert.Equal(t, []string{"B"}, codes(res.Unchanged))
	assert.Equal(t, []string{"A"}, codes(res.Retained))
	assert.Empty(t, res.Removed)

	all, err := f.consignments.Shipments(f.ctx, c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, codes(all))
}

func TestReconcile_ReplaceDeletesUnlistedAndLogs(t *testing.T) {
	f := newTestFixture(t)
	c, created := f.consignment("2", "A", "B")

	res, err := f.reconciler.Reconcile(f.ctx, c.ID, []string{"B"}, shipping.AttributesOf(*c), ownerID, shipping.ReplaceCodes)

	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, codes(res.Removed))

	logs := f.logs(created[0].ID)
	require.NotEmpty(t, logs)
	assert.Equal(t, parcel.ActionDelete, logs[0].Action)
	_, err = f.machine.Get(f.ctx, created[0].ID)
	assert.True(t, parcel.IsNotFound(err))
}

func TestReconcile_ReplaceRefusesProgressedShipment(t *testing.T) {
	f := newTestFixture(t)
	c, created := f.consignment("2", "A", "B")
	f.walk(created[0].ID, parcel.StatusForeignStoreReceived)

	_, err := f.reconciler.Reconcile(f.ctx, c.ID, []string{"B", "C"}, shipping.AttributesOf(*c), ownerID, shipping.ReplaceCodes)

	assert.ErrorIs(t, err, parcel.ErrInvalidState)
	all, err := f.consignments.Shipments(f.ctx, c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, codes(all), "C must not be created when the unit fails")
}

func TestReconcile_UpdatesAttributesButNotFrozenWeight(t *testing.T) {
	f := newTestFixture(t)
	c, created := f.consignment("2", "A", "B")
	f.walk(created[0].ID, parcel.StatusVNReceived)

	attrs := shipping.AttributesOf(*c)
	attrs.Raw.Weight = dec("5")
	attrs.DomesticShippingFee = dec("12")
	res, err := f.reconciler.Reconcile(f.ctx, c.ID, []string{"A", "B"}, attrs, ownerID, shipping.MergeCodes)

	require.NoError(t, err)
	require.Len(t, res.Updated, 2)
	byCode := map[string]parcel.Shipment{}
	for _, s := range res.Updated {
		byCode[s.Code] = s
	}
	assert.True(t, dec("2").Equal(byCode["A"].Raw.Weight), "frozen weight kept")
	assert.True(t, dec("5").Equal(byCode["B"].Raw.Weight))
	assert.True(t, dec("12").Equal(byCode["A"].DomesticShippingFee))
}

func TestReconcile_NormalizesCodes(t *testing.T) {
	f := newTestFixture(t)
	c, _ := f.consignment("2")

	res, err := f.reconciler.Reconcile(f.ctx, c.ID, []string{" A ", "A", "B"}, shipping.AttributesOf(*c), ownerID, shipping.MergeCodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, codes(res.Created))

	_, err = f.reconciler.Reconcile(f.ctx, c.ID, []string{"C", "  "}, shipping.AttributesOf(*c), ownerID, shipping.MergeCodes)
	assert.ErrorIs(t, err, parcel.ErrInvalidArgument)
}

func TestReconcile_MissingConsignment(t *testing.T) {
	f := newTestFixture(t)
	_, err := f.reconciler.Reconcile(f.ctx, 42, []string{"A"}, shipping.ShipmentAttributes{}, ownerID, shipping.MergeCodes)
	assert.True(t, parcel.IsNotFound(err))
}

func TestReconcileMode_String(t *testing.T) {
	assert.Equal(t, "merge", shipping.MergeCodes.String())
	assert.Equal(t, "replace", shipping.ReplaceCodes.String())
}

// lockRecorder records which shipments a unit of work row-locks.
type lockRecorder struct {
	parcel.TxStore
	locked []parcel.ShipmentID
}

func (r *lockRecorder) WithTx(ctx context.Context, fn func(parcel.Store) error) error {
	return r.TxStore.WithTx(ctx, func(tx parcel.Store) error {
		return fn(recordingTx{Store: tx, rec: r})
	})
}

type recordingTx struct {
	parcel.Store
	rec *lockRecorder
}

func (t recordingTx) LockShipment(ctx context.Context, id parcel.ShipmentID) (*parcel.Shipment, error) {
	t.rec.locked = append(t.rec.locked, id)
	return t.Store.LockShipment(ctx, id)
}

func TestReconcile_LocksExistingShipmentsBeforeWriting(t *testing.T) {
	// GIVEN: a consignment with two shipments, one already received in Vietnam
	f := newTestFixture(t)
	c, created := f.consignment("2", "A", "B")
	f.walk(created[0].ID, parcel.StatusVNReceived)
	rec := &lockRecorder{TxStore: f.store}
	reconciler := shipping.NewReconciler(rec, f.deps)

	// WHEN: the codes are reconciled with new dimensions
	attrs := shipping.AttributesOf(*c)
	attrs.Packaged.Height = dec("30")
	res, err := reconciler.Reconcile(f.ctx, c.ID, []string{"A", "B"}, attrs, ownerID, shipping.MergeCodes)

	// THEN: every existing row was locked in id order and the status read
	// under the lock is the one written back
	require.NoError(t, err)
	assert.Equal(t, []parcel.ShipmentID{created[0].ID, created[1].ID}, rec.locked)
	require.Len(t, res.Updated, 2)
	got, err := f.machine.Get(f.ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, parcel.StatusVNReceived, got.Status)
	assert.True(t, dec("30").Equal(got.Packaged.Height))
}
