package finance

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/parcel"
)

const (
	DefaultForeignCurrency = "CNY"
	DefaultLocalCurrency   = "VND"
)

type ExchangeInput struct {
	Name            string `validate:"required,max=255"`
	Description     string `validate:"max=2048"`
	ForeignCurrency string `validate:"omitempty,len=3,alpha"`
	LocalCurrency   string `validate:"omitempty,len=3,alpha"`
	Rate            decimal.Decimal
	Type            parcel.ExchangeType
	IsActive        bool
}

// ExchangeUpdate is a partial update; nil fields are left alone.
type ExchangeUpdate struct {
	Name            *string
	Description     *string
	ForeignCurrency *string
	LocalCurrency   *string
	Rate            *decimal.Decimal
	Type            *parcel.ExchangeType
	IsActive        *bool
}

// Exchanges maintains currency exchange rates. At most one rate is active
// per currency pair.
type Exchanges struct {
	store parcel.TxStore
	deps  parcel.Deps
}

func NewExchanges(store parcel.TxStore, deps parcel.Deps) *Exchanges {
	return &Exchanges{store: store, deps: deps.Defaults()}
}

func (x *Exchanges) Get(ctx context.Context, id parcel.ExchangeID) (*parcel.Exchange, error) {
	return parcel.View(ctx, x.store, func(tx parcel.Store) (*parcel.Exchange, error) {
		e, err := tx.GetExchange(ctx, id)
		if err == nil && e == nil {
			err = parcel.NotFound("exchange", id)
		}
		return e, err
	})
}

func (x *Exchanges) List(ctx context.Context) ([]parcel.Exchange, error) {
	return parcel.View(ctx, x.store, func(tx parcel.Store) ([]parcel.Exchange, error) {
		return tx.Exchanges(ctx)
	})
}

// Active returns the active rate for a currency pair.
func (x *Exchanges) Active(ctx context.Context, foreign, local string) (*parcel.Exchange, error) {
	foreign, local = strings.ToUpper(foreign), strings.ToUpper(local)
	return parcel.View(ctx, x.store, func(tx parcel.Store) (*parcel.Exchange, error) {
		e, err := tx.ActiveExchange(ctx, foreign, local)
		if err == nil && e == nil {
			err = parcel.NotFound("active exchange", foreign+"/"+local)
		}
		return e, err
	})
}

func (x *Exchanges) Create(ctx context.Context, in ExchangeInput, actor parcel.UserID) (*parcel.Exchange, error) {
	if err := parcel.Validate(in); err != nil {
		return nil, err
	}
	if !in.Rate.IsPositive() {
		return nil, parcel.InvalidArgument("exchange_rate", "must be positive")
	}
	if in.Type == 0 {
		in.Type = parcel.ExchangeBasic
	}
	if !in.Type.IsValid() {
		return nil, parcel.InvalidArgument("type", fmt.Sprintf("unknown exchange type %d", in.Type))
	}

	e := &parcel.Exchange{
		Name:            in.Name,
		Description:     in.Description,
		ForeignCurrency: currencyOr(in.ForeignCurrency, DefaultForeignCurrency),
		LocalCurrency:   currencyOr(in.LocalCurrency, DefaultLocalCurrency),
		Rate:            in.Rate,
		Type:            in.Type,
		IsActive:        in.IsActive,
	}
	err := x.store.WithTx(ctx, func(tx parcel.Store) error {
		if e.IsActive {
			if err := x.checkPairFree(ctx, tx, e); err != nil {
				return err
			}
		}
		now := x.deps.Now()
		e.CreatedAt, e.UpdatedAt = now, now
		if err := tx.CreateExchange(ctx, e); err != nil {
			return err
		}
		_, err := parcel.NewAuditLog(tx, x.deps.Now).Record(ctx, actor, parcel.ObjectExchange, uint64(e.ID), parcel.ActionCreate, []parcel.FieldChange{
			{Field: "foreign_currency", New: e.ForeignCurrency},
			{Field: "local_currency", New: e.LocalCurrency},
			{Field: "exchange_rate", New: e.Rate.String()},
			{Field: "is_active", New: e.IsActive},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	x.deps.Log.WithFields(logrus.Fields{
		"module":      "finance",
		"exchange_id": e.ID,
		"pair":        e.ForeignCurrency + "/" + e.LocalCurrency,
		"rate":        e.Rate.String(),
	}).Info("exchange rate created")
	return e, nil
}

// Update applies u and logs one UPDATE entry listing the fields that changed.
func (x *Exchanges) Update(ctx context.Context, id parcel.ExchangeID, u ExchangeUpdate, actor parcel.UserID) (*parcel.Exchange, []parcel.FieldChange, error) {
	if u.Rate != nil && !u.Rate.IsPositive() {
		return nil, nil, parcel.InvalidArgument("exchange_rate", "must be positive")
	}
	if u.Type != nil && !u.Type.IsValid() {
		return nil, nil, parcel.InvalidArgument("type", fmt.Sprintf("unknown exchange type %d", *u.Type))
	}
	var err error
	if u.ForeignCurrency, err = normalizeCurrency("foreign_currency", u.ForeignCurrency); err != nil {
		return nil, nil, err
	}
	if u.LocalCurrency, err = normalizeCurrency("local_currency", u.LocalCurrency); err != nil {
		return nil, nil, err
	}

	var (
		out     *parcel.Exchange
		changes = &parcel.ChangeSet{}
	)
	err = x.store.WithTx(ctx, func(tx parcel.Store) error {
		e, err := tx.GetExchange(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return parcel.NotFound("exchange", id)
		}

		parcel.Track(changes, "name", &e.Name, u.Name)
		parcel.Track(changes, "description", &e.Description, u.Description)
		parcel.Track(changes, "foreign_currency", &e.ForeignCurrency, u.ForeignCurrency)
		parcel.Track(changes, "local_currency", &e.LocalCurrency, u.LocalCurrency)
		parcel.TrackDecimal(changes, "exchange_rate", &e.Rate, u.Rate)
		parcel.Track(changes, "type", &e.Type, u.Type)
		parcel.Track(changes, "is_active", &e.IsActive, u.IsActive)
		if changes.Empty() {
			out = e
			return nil
		}

		if e.IsActive {
			if err := x.checkPairFree(ctx, tx, e); err != nil {
				return err
			}
		}
		e.UpdatedAt = x.deps.Now()
		if err := tx.SaveExchange(ctx, e); err != nil {
			return err
		}
		if _, err := parcel.NewAuditLog(tx, x.deps.Now).Record(ctx, actor, parcel.ObjectExchange, uint64(id), parcel.ActionUpdate, changes.Changes()); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if !changes.Empty() {
		x.deps.Log.WithFields(logrus.Fields{
			"module":      "finance",
			"exchange_id": id,
			"fields":      changes.Fields(),
		}).Info("exchange rate updated")
	}
	return out, changes.Changes(), nil
}

// checkPairFree fails if another exchange is already active for e's pair.
func (x *Exchanges) checkPairFree(ctx context.Context, tx parcel.Store, e *parcel.Exchange) error {
	active, err := tx.ActiveExchange(ctx, e.ForeignCurrency, e.LocalCurrency)
	if err != nil {
		return err
	}
	if active != nil && active.ID != e.ID {
		return &parcel.InvalidStateError{
			Entity: "exchange", ID: active.ID, Field: "is_active",
			Reason: fmt.Sprintf("an active exchange already exists for %s/%s", e.ForeignCurrency, e.LocalCurrency),
		}
	}
	return nil
}

func currencyOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return strings.ToUpper(code)
}

// normalizeCurrency upper-cases a sent currency code into a new value.
func normalizeCurrency(field string, code *string) (*string, error) {
	if code == nil {
		return nil, nil
	}
	up := strings.ToUpper(strings.TrimSpace(*code))
	if len(up) != 3 {
		return nil, parcel.InvalidArgument(field, "must be a 3-letter currency code")
	}
	return &up, nil
}
