/*
deposit.go - Deposit bill settlement

PURPOSE:
  Users top up their prepaid balance by filing a deposit bill. An
  administrator then approves or rejects it. Approval is the only path
  that credits the Ledger.

STATE:
  PENDING -> APPROVED | NOT_APPROVED   (terminal)

ATOMICITY:
  Status write, change log entry and ledger credit run in one WithTx
  unit. A credit never lands without its status change and log entry,
  and a failed credit rolls both back.

SEE ALSO:
  - parcel/ledger.go: Credit creates the ledger row on first use
*/
package finance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/metrics"
	"github.com/warp/parcel-engine/parcel"
)

type DepositInput struct {
	UserID      parcel.UserID `validate:"required"`
	FullName    string        `validate:"required,max=255"`
	Amount      decimal.Decimal
	DepositType parcel.DepositType
	Note        string `validate:"max=2048"`
}

type Settlement struct {
	store parcel.TxStore
	deps  parcel.Deps
}

func NewSettlement(store parcel.TxStore, deps parcel.Deps) *Settlement {
	return &Settlement{store: store, deps: deps.Defaults()}
}

func depositKey(id parcel.DepositBillID) string {
	return fmt.Sprintf("deposit:%d", id)
}

// Create files a PENDING bill and logs its creation.
func (s *Settlement) Create(ctx context.Context, in DepositInput, actor parcel.UserID) (*parcel.DepositBill, error) {
	if err := parcel.Validate(in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, parcel.InvalidArgument("amount", "must be positive")
	}
	if !in.DepositType.IsValid() {
		return nil, parcel.InvalidArgument("deposit_type", fmt.Sprintf("unknown deposit type %d", in.DepositType))
	}

	bill := &parcel.DepositBill{
		UserID:      in.UserID,
		FullName:    in.FullName,
		Amount:      in.Amount,
		DepositType: in.DepositType,
		Note:        in.Note,
		Status:      parcel.DepositPending,
	}
	err := s.store.WithTx(ctx, func(tx parcel.Store) error {
		now := s.deps.Now()
		bill.CreatedAt, bill.UpdatedAt = now, now
		if err := tx.CreateDepositBill(ctx, bill); err != nil {
			return err
		}
		_, err := parcel.NewAuditLog(tx, s.deps.Now).Record(ctx, actor, parcel.ObjectDepositBill, uint64(bill.ID), parcel.ActionCreate, []parcel.FieldChange{
			{Field: "amount", New: bill.Amount.String()},
			{Field: "deposit_type", New: bill.DepositType},
			{Field: "status", New: bill.Status},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.deps.Log.WithFields(logrus.Fields{
		"module":  "finance",
		"bill_id": bill.ID,
		"user_id": bill.UserID,
		"amount":  bill.Amount.String(),
	}).Info("deposit bill filed")
	return bill, nil
}

func (s *Settlement) Get(ctx context.Context, id parcel.DepositBillID) (*parcel.DepositBill, error) {
	return parcel.View(ctx, s.store, func(tx parcel.Store) (*parcel.DepositBill, error) {
		b, err := tx.GetDepositBill(ctx, id)
		if err == nil && b == nil {
			err = parcel.NotFound("deposit bill", id)
		}
		return b, err
	})
}

func (s *Settlement) List(ctx context.Context, filter parcel.DepositFilter) ([]parcel.DepositBill, error) {
	return parcel.View(ctx, s.store, func(tx parcel.Store) ([]parcel.DepositBill, error) {
		return tx.DepositBills(ctx, filter)
	})
}

// Balance returns the user's ledger balance.
func (s *Settlement) Balance(ctx context.Context, userID parcel.UserID) (decimal.Decimal, error) {
	return parcel.View(ctx, s.store, func(tx parcel.Store) (decimal.Decimal, error) {
		return parcel.NewLedger(tx, s.deps.Now).Balance(ctx, userID)
	})
}

// SettlementResult is what a committed approval produced.
type SettlementResult struct {
	Bill     parcel.DepositBill
	Log      *parcel.ChangeLog
	Credited bool
	Balance  decimal.Decimal
}

// Approve settles a PENDING bill with decision APPROVED or NOT_APPROVED.
func (s *Settlement) Approve(ctx context.Context, id parcel.DepositBillID, actor parcel.UserID, decision parcel.DepositStatus) (*SettlementResult, error) {
	if decision != parcel.DepositApproved && decision != parcel.DepositNotApproved {
		return nil, parcel.InvalidArgument("status", "decision must be APPROVED or NOT_APPROVED, got "+decision.String())
	}

	release, err := s.deps.Acquire(ctx, depositKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var res *SettlementResult
	err = s.store.WithTx(ctx, func(tx parcel.Store) error {
		bill, err := tx.LockDepositBill(ctx, id)
		if err != nil {
			return err
		}
		if bill == nil {
			return parcel.NotFound("deposit bill", id)
		}
		if bill.Status != parcel.DepositPending {
			return &parcel.InvalidStateError{
				Entity: "deposit bill", ID: id, Field: "status",
				Reason:   "the deposit bill has already been processed",
				Expected: parcel.DepositPending.String(), Actual: bill.Status.String(),
			}
		}

		changes := &parcel.ChangeSet{}
		parcel.Track(changes, "status", &bill.Status, &decision)
		bill.UpdatedAt = s.deps.Now()
		if err := tx.SaveDepositBill(ctx, bill); err != nil {
			return err
		}
		entry, err := parcel.NewAuditLog(tx, s.deps.Now).Record(ctx, actor, parcel.ObjectDepositBill, uint64(id), parcel.ActionUpdate, changes.Changes())
		if err != nil {
			return err
		}

		res = &SettlementResult{Bill: *bill, Log: entry}
		if decision == parcel.DepositApproved {
			balance, err := parcel.NewLedger(tx, s.deps.Now).Credit(ctx, bill.UserID, bill.Amount)
			if err != nil {
				return err
			}
			res.Credited = true
			res.Balance = balance
		}
		return nil
	})

	log := s.deps.Log.WithFields(logrus.Fields{
		"module":   "finance",
		"bill_id":  id,
		"actor":    actor,
		"decision": decision.String(),
	})
	if err != nil {
		log.WithField("kind", parcel.Kind(err)).Debug("deposit settlement rejected: " + err.Error())
		return nil, err
	}

	metrics.DepositSettlementsTotal.WithLabelValues(decision.String()).Inc()
	if res.Credited {
		metrics.LedgerOperationsTotal.WithLabelValues("credit").Inc()
		log = log.WithField("balance", res.Balance.String())
	}
	log.Info("deposit bill settled")
	return res, nil
}
