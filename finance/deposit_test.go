package finance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/finance"
	"github.com/warp/parcel-engine/lock"
	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/parcel/store"
)

const (
	userID  parcel.UserID = 7
	adminID parcel.UserID = 1
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx        context.Context
	store      *store.Memory
	settlement *finance.Settlement
	exchanges  *finance.Exchanges
}

func newTestFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	deps := parcel.Deps{Locker: lock.NewLocal(), Now: func() time.Time { return fixedNow }}
	return &fixture{
		ctx:        context.Background(),
		store:      mem,
		settlement: finance.NewSettlement(mem, deps),
		exchanges:  finance.NewExchanges(mem, deps),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) file(t *testing.T, amount string) *parcel.DepositBill {
	t.Helper()
	b, err := f.settlement.Create(f.ctx, finance.DepositInput{
		UserID: userID, FullName: "Lan", Amount: dec(amount), DepositType: parcel.DepositBanking,
	}, userID)
	require.NoError(t, err)
	return b
}

func (f *fixture) billLogs(t *testing.T, id parcel.DepositBillID) []parcel.ChangeLog {
	t.Helper()
	logs, err := parcel.View(f.ctx, f.store, func(tx parcel.Store) ([]parcel.ChangeLog, error) {
		return tx.ChangeLogs(f.ctx, parcel.ChangeLogFilter{ObjectType: parcel.ObjectDepositBill, ObjectID: uint64(id)})
	})
	require.NoError(t, err)
	return logs
}

// =============================================================================
// FILING
// =============================================================================

func TestSettlement_CreateFilesPendingBill(t *testing.T) {
	f := newTestFixture(t)

	b := f.file(t, "500")

	assert.Equal(t, parcel.DepositPending, b.Status)
	assert.Equal(t, fixedNow, b.CreatedAt)
	logs := f.billLogs(t, b.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, parcel.ActionCreate, logs[0].Action)
}

func TestSettlement_CreateRejectsBadInput(t *testing.T) {
	f := newTestFixture(t)
	for name, in := range map[string]finance.DepositInput{
		"zero amount":  {UserID: userID, FullName: "Lan", Amount: decimal.Zero, DepositType: parcel.DepositCash},
		"no name":      {UserID: userID, Amount: dec("1"), DepositType: parcel.DepositCash},
		"unknown type": {UserID: userID, FullName: "Lan", Amount: dec("1"), DepositType: 9},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.settlement.Create(f.ctx, in, userID)
			assert.ErrorIs(t, err, parcel.ErrInvalidArgument)
		})
	}
}

// =============================================================================
// APPROVAL
// =============================================================================

func TestSettlement_ApproveCreditsAndLogs(t *testing.T) {
	// GIVEN: a pending bill of 250.50 and no ledger row yet
	f := newTestFixture(t)
	b := f.file(t, "250.50")

	// WHEN: an admin approves it
	res, err := f.settlement.Approve(f.ctx, b.ID, adminID, parcel.DepositApproved)

	// THEN: the row is created with the amount and one UPDATE entry is logged
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.True(t, dec("250.5").Equal(res.Balance))
	assert.Equal(t, parcel.DepositApproved, res.Bill.Status)
	require.NotNil(t, res.Log)
	assert.Equal(t, adminID, res.Log.UserID)
	assert.Equal(t, []parcel.FieldChange{{Field: "status", Old: parcel.DepositPending, New: parcel.DepositApproved}}, res.Log.Changes)

	balance, err := f.settlement.Balance(f.ctx, userID)
	require.NoError(t, err)
	assert.True(t, dec("250.5").Equal(balance))
}

func TestSettlement_RejectDoesNotCredit(t *testing.T) {
	f := newTestFixture(t)
	b := f.file(t, "100")

	res, err := f.settlement.Approve(f.ctx, b.ID, adminID, parcel.DepositNotApproved)

	require.NoError(t, err)
	assert.False(t, res.Credited)
	_, err = f.settlement.Balance(f.ctx, userID)
	assert.True(t, parcel.IsNotFound(err))
}

func TestSettlement_SecondDecisionIsInvalidState(t *testing.T) {
	f := newTestFixture(t)
	b := f.file(t, "100")
	_, err := f.settlement.Approve(f.ctx, b.ID, adminID, parcel.DepositApproved)
	require.NoError(t, err)

	for _, decision := range []parcel.DepositStatus{parcel.DepositApproved, parcel.DepositNotApproved} {
		_, err = f.settlement.Approve(f.ctx, b.ID, adminID, decision)
		assert.ErrorIs(t, err, parcel.ErrInvalidState)
	}

	balance, err := f.settlement.Balance(f.ctx, userID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(balance))
	assert.Len(t, f.billLogs(t, b.ID), 2)
}

func TestSettlement_ApproveRejectsPendingAsDecision(t *testing.T) {
	f := newTestFixture(t)
	b := f.file(t, "100")

	_, err := f.settlement.Approve(f.ctx, b.ID, adminID, parcel.DepositPending)

	assert.ErrorIs(t, err, parcel.ErrInvalidArgument)
}

func TestSettlement_ApproveMissingBill(t *testing.T) {
	f := newTestFixture(t)
	_, err := f.settlement.Approve(f.ctx, 12, adminID, parcel.DepositApproved)
	assert.True(t, parcel.IsNotFound(err))
}

func TestSettlement_ConcurrentApprovalsCreditOnce(t *testing.T) {
	f := newTestFixture(t)
	b := f.file(t, "75")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.settlement.Approve(f.ctx, b.ID, adminID, parcel.DepositApproved); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	balance, err := f.settlement.Balance(f.ctx, userID)
	require.NoError(t, err)
	assert.True(t, dec("75").Equal(balance))
}

func TestSettlement_ApprovalsAccumulate(t *testing.T) {
	for name, tc := range map[string]struct {
		amounts    []string
		concurrent bool
		want       string
	}{
		"sequential":           {amounts: []string{"120", "80.5"}, want: "200.5"},
		"concurrent first two": {amounts: []string{"30", "45"}, concurrent: true, want: "75"},
	} {
		t.Run(name, func(t *testing.T) {
			// GIVEN: one pending bill per amount and no ledger row
			f := newTestFixture(t)
			bills := make([]*parcel.DepositBill, len(tc.amounts))
			for i, amount := range tc.amounts {
				bills[i] = f.file(t, amount)
			}

			// WHEN: every bill is approved
			errs := make([]error, len(bills))
			var wg sync.WaitGroup
			for i, b := range bills {
				approve := func(i int, id parcel.DepositBillID) {
					_, errs[i] = f.settlement.Approve(f.ctx, id, adminID, parcel.DepositApproved)
				}
				if !tc.concurrent {
					approve(i, b.ID)
					continue
				}
				wg.Add(1)
				go func(i int, id parcel.DepositBillID) {
					defer wg.Done()
					approve(i, id)
				}(i, b.ID)
			}
			wg.Wait()

			// THEN: each approval lands and the balance is their sum
			for _, err := range errs {
				require.NoError(t, err)
			}
			balance, err := f.settlement.Balance(f.ctx, userID)
			require.NoError(t, err)
			assert.True(t, dec(tc.want).Equal(balance), "balance %s", balance)
		})
	}
}

func TestSettlement_ListFiltersByUserAndStatus(t *testing.T) {
	f := newTestFixture(t)
	first := f.file(t, "10")
	f.file(t, "20")
	_, err := f.settlement.Create(f.ctx, finance.DepositInput{UserID: 8, FullName: "Minh", Amount: dec("5"), DepositType: parcel.DepositCash}, 8)
	require.NoError(t, err)
	_, err = f.settlement.Approve(f.ctx, first.ID, adminID, parcel.DepositApproved)
	require.NoError(t, err)

	uid, pending := userID, parcel.DepositPending
	bills, err := f.settlement.List(f.ctx, parcel.DepositFilter{UserID: &uid, Status: &pending})

	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.True(t, dec("20").Equal(bills[0].Amount))
}
