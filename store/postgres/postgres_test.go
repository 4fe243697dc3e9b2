package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/shipping"
	"github.com/warp/parcel-engine/store/postgres"
)

// Runs against a live database only when POSTGRES_DSN is set, e.g.
// POSTGRES_DSN="host=localhost user=parcel password=parcel dbname=parcel_test sslmode=disable"
func newTestStore(t *testing.T) *postgres.Store {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	store, err := postgres.New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgres_LedgerRow_LockAndSave(t *testing.T) {
	// GIVEN: A fresh ledger row
	// WHEN: It is locked and debited inside a transaction
	// THEN: The new balance is visible after commit

	store := newTestStore(t)
	ctx := context.Background()
	user := parcel.UserID(900001)

	require.NoError(t, store.WithTx(ctx, func(tx parcel.Store) error {
		existing, err := tx.LockUserFinance(ctx, user)
		if err != nil || existing != nil {
			return err
		}
		return tx.CreateUserFinance(ctx, &parcel.UserFinance{UserID: user, Balance: decimal.NewFromInt(100)})
	}))

	require.NoError(t, store.WithTx(ctx, func(tx parcel.Store) error {
		_, err := parcel.NewLedger(tx, nil).Debit(ctx, user, decimal.NewFromInt(40))
		return err
	}))

	fin, err := store.GetUserFinance(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, fin)
	assert.True(t, fin.Balance.LessThanOrEqual(decimal.NewFromInt(60)))
}

// freshUser returns a user id unlikely to collide with earlier runs.
func freshUser() parcel.UserID {
	return parcel.UserID(1_000_000 + time.Now().UnixNano()%1_000_000_000)
}

func TestPostgres_ConcurrentFirstCredits_BothLand(t *testing.T) {
	// GIVEN: A user with no ledger row
	// WHEN: Two transactions credit 30 and 45 at the same time
	// THEN: Both commit and the balance is 75

	store := newTestStore(t)
	ctx := context.Background()
	user := freshUser()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, amount := range []int64{30, 45} {
		wg.Add(1)
		go func(i int, amount int64) {
			defer wg.Done()
			errs[i] = store.WithTx(ctx, func(tx parcel.Store) error {
				_, err := parcel.NewLedger(tx, nil).Credit(ctx, user, decimal.NewFromInt(amount))
				return err
			})
		}(i, amount)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	fin, err := store.GetUserFinance(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, fin)
	assert.True(t, decimal.NewFromInt(75).Equal(fin.Balance))
}

func TestPostgres_ReconcileWaitsForInFlightTransition(t *testing.T) {
	// GIVEN: A shipment at VN_RECEIVED whose row is held by a transition
	// WHEN: The consignment is reconciled while the transition commits
	// THEN: The committed status survives and the new dimensions land

	store := newTestStore(t)
	ctx := context.Background()
	user := freshUser()

	c := &parcel.Consignment{
		UserID: user, SourceWarehouseID: 1, DestWarehouseID: 2, AddressID: 1,
		ShippingName: "Lan", ShippingPhone: "0901", ShippingAddress: "12 Hang Bac",
		Raw: parcel.Dimensions{Weight: decimal.NewFromInt(2)}, NumberOfPackages: 1,
		Code: fmt.Sprintf("GZ-HN-%d", user),
	}
	s := &parcel.Shipment{UserID: user, Code: "CN-1", Status: parcel.StatusVNReceived, Raw: c.Raw}
	require.NoError(t, store.WithTx(ctx, func(tx parcel.Store) error {
		if err := tx.CreateConsignment(ctx, c); err != nil {
			return err
		}
		s.ConsignmentID = c.ID
		return tx.CreateShipment(ctx, s)
	}))

	locked := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithTx(ctx, func(tx parcel.Store) error {
			held, err := tx.LockShipment(ctx, s.ID)
			if err != nil {
				return err
			}
			close(locked)
			time.Sleep(200 * time.Millisecond)
			held.Status = parcel.StatusVNShipmentRequested
			return tx.SaveShipment(ctx, held)
		})
	}()
	<-locked

	attrs := shipping.AttributesOf(*c)
	attrs.Packaged.Height = decimal.NewFromInt(30)
	_, err := shipping.NewReconciler(store, parcel.Deps{}).
		Reconcile(ctx, c.ID, []string{"CN-1"}, attrs, user, shipping.MergeCodes)
	require.NoError(t, err)
	require.NoError(t, <-done)

	got, err := store.GetShipment(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, parcel.StatusVNShipmentRequested, got.Status)
	assert.True(t, decimal.NewFromInt(30).Equal(got.Packaged.Height))
}

func TestPostgres_ChangeLog_RoundTripsJSONB(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &parcel.ChangeLog{
		UserID: 1, ObjectType: parcel.ObjectExchange, ObjectID: 424242, Action: parcel.ActionUpdate,
		Changes: []parcel.FieldChange{{Field: "exchange_rate", Old: "3400", New: "3550"}},
	}
	require.NoError(t, store.WithTx(ctx, func(tx parcel.Store) error {
		return tx.AppendChangeLog(ctx, entry)
	}))

	logs, err := store.ChangeLogs(ctx, parcel.ChangeLogFilter{ObjectType: parcel.ObjectExchange, ObjectID: 424242, Limit: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "exchange_rate", logs[0].Changes[0].Field)
	assert.Equal(t, "3550", logs[0].Changes[0].New)
}
