/*
ledger.go - Per-user prepaid balance

PURPOSE:
  The Ledger owns the UserFinance row of each user. Last-mile fees are
  debited from it; approved deposit bills are credited to it.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: a debit larger than the balance fails with
     InsufficientFundsError and writes nothing.
  2. LAZY ROW: the first credit creates the row; a debit never does.
     The row is ensured before it is locked, so two first credits for
     the same user both land.
  3. LINEARIZABLE PER USER: every read-modify-write goes through
     LockUserFinance inside the caller's transaction, so two units of
     work touching the same user cannot interleave.

USAGE:
  Always construct the Ledger over the transactional view:

    store.WithTx(ctx, func(tx parcel.Store) error {
        _, err := parcel.NewLedger(tx, now).Debit(ctx, userID, fee)
        return err
    })

SEE ALSO:
  - shipping/machine.go: debits the fulfillment fee
  - finance/deposit.go: credits approved deposits
*/
package parcel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Ledger struct {
	store FinanceStore
	now   Clock
}

// NewLedger wraps a FinanceStore. A nil clock means time.Now.
func NewLedger(store FinanceStore, now Clock) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID UserID) (decimal.Decimal, error) {
	f, err := l.store.GetUserFinance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if f == nil {
		return decimal.Zero, NotFound("user finance", userID)
	}
	return f.Balance, nil
}

// Debit decrements the balance and returns the new value.
func (l *Ledger) Debit(ctx context.Context, userID UserID, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, InvalidArgument("amount", "must not be negative")
	}

	f, err := l.store.LockUserFinance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if f == nil {
		return decimal.Zero, NotFound("user finance", userID)
	}
	if amount.GreaterThan(f.Balance) {
		return f.Balance, &InsufficientFundsError{UserID: userID, Balance: f.Balance, Required: amount}
	}

	f.Balance = f.Balance.Sub(amount)
	f.UpdatedAt = l.now()
	if err := l.store.SaveUserFinance(ctx, f); err != nil {
		return decimal.Zero, err
	}
	return f.Balance, nil
}

// Credit increments the balance, creating the row on first use.
func (l *Ledger) Credit(ctx context.Context, userID UserID, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, InvalidArgument("amount", "must not be negative")
	}

	f, err := l.store.LockUserFinance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if f == nil {
		if err := l.store.EnsureUserFinance(ctx, userID); err != nil {
			return decimal.Zero, err
		}
		if f, err = l.store.LockUserFinance(ctx, userID); err != nil {
			return decimal.Zero, err
		}
		if f == nil {
			return decimal.Zero, NotFound("user finance", userID)
		}
	}

	f.Balance = f.Balance.Add(amount)
	f.UpdatedAt = l.now()
	if err := l.store.SaveUserFinance(ctx, f); err != nil {
		return decimal.Zero, err
	}
	return f.Balance, nil
}
