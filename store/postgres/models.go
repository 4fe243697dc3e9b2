package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/parcel-engine/parcel"
)

// =============================================================================
// ROW MODELS
// =============================================================================

// Physical holds the measure and surcharge columns shared by consignments
// and shipments.
type Physical struct {
	Weight         decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	Height         decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	Width          decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	Length         decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	WeightPackaged decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	HeightPackaged decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	WidthPackaged  decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	LengthPackaged decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`

	ContainsLiquid     bool            `gorm:"not null;default:false"`
	ContainsLiquidFee  decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	IsFragile          bool            `gorm:"not null;default:false"`
	IsFragileFee       decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	WoodenPackaging    bool            `gorm:"not null;default:false"`
	WoodenPackagingFee decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	Insurance          bool            `gorm:"not null;default:false"`
	InsuranceFee       decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	ItemCountCheck     bool            `gorm:"not null;default:false"`
	ItemCountCheckFee  decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`

	DomesticShippingFee decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
}

func physicalOf(raw, pk parcel.Dimensions, sc parcel.Surcharges, domestic decimal.Decimal) Physical {
	return Physical{
		Weight: raw.Weight, Height: raw.Height, Width: raw.Width, Length: raw.Length,
		WeightPackaged: pk.Weight, HeightPackaged: pk.Height, WidthPackaged: pk.Width, LengthPackaged: pk.Length,
		ContainsLiquid: sc.ContainsLiquid, ContainsLiquidFee: sc.ContainsLiquidFee,
		IsFragile: sc.Fragile, IsFragileFee: sc.FragileFee,
		WoodenPackaging: sc.WoodenPackaging, WoodenPackagingFee: sc.WoodenPackagingFee,
		Insurance: sc.Insurance, InsuranceFee: sc.InsuranceFee,
		ItemCountCheck: sc.ItemCountCheck, ItemCountCheckFee: sc.ItemCountCheckFee,
		DomesticShippingFee: domestic,
	}
}

func (p Physical) split() (raw, pk parcel.Dimensions, sc parcel.Surcharges, domestic decimal.Decimal) {
	raw = parcel.Dimensions{Weight: p.Weight, Height: p.Height, Width: p.Width, Length: p.Length}
	pk = parcel.Dimensions{Weight: p.WeightPackaged, Height: p.HeightPackaged, Width: p.WidthPackaged, Length: p.LengthPackaged}
	sc = parcel.Surcharges{
		ContainsLiquid: p.ContainsLiquid, ContainsLiquidFee: p.ContainsLiquidFee,
		Fragile: p.IsFragile, FragileFee: p.IsFragileFee,
		WoodenPackaging: p.WoodenPackaging, WoodenPackagingFee: p.WoodenPackagingFee,
		Insurance: p.Insurance, InsuranceFee: p.InsuranceFee,
		ItemCountCheck: p.ItemCountCheck, ItemCountCheckFee: p.ItemCountCheckFee,
	}
	return raw, pk, sc, p.DomesticShippingFee
}

type consignmentRow struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	UserID            uint64 `gorm:"not null;index"`
	SourceWarehouseID uint64 `gorm:"not null"`
	DestWarehouseID   uint64 `gorm:"not null"`
	AddressID         uint64 `gorm:"not null"`
	ShippingName      string `gorm:"size:255;not null"`
	ShippingPhone     string `gorm:"size:32;not null"`
	ShippingAddress   string `gorm:"size:1024;not null"`
	Physical          `gorm:"embedded"`
	ProductCategoryID uint64
	ProductName       string `gorm:"size:255"`
	NumberOfPackages  int    `gorm:"not null;default:1"`
	Code              string `gorm:"size:255;not null;index"`
	CreatedAt         time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime:false"`
}

func (consignmentRow) TableName() string { return "consignments" }

func consignmentFrom(c *parcel.Consignment) consignmentRow {
	return consignmentRow{
		ID: uint64(c.ID), UserID: uint64(c.UserID),
		SourceWarehouseID: uint64(c.SourceWarehouseID), DestWarehouseID: uint64(c.DestWarehouseID),
		AddressID:    uint64(c.AddressID),
		ShippingName: c.ShippingName, ShippingPhone: c.ShippingPhone, ShippingAddress: c.ShippingAddress,
		Physical:          physicalOf(c.Raw, c.Packaged, c.Surcharges, c.DomesticShippingFee),
		ProductCategoryID: c.ProductCategoryID, ProductName: c.ProductName,
		NumberOfPackages: c.NumberOfPackages, Code: c.Code,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (r consignmentRow) domain() parcel.Consignment {
	c := parcel.Consignment{
		ID: parcel.ConsignmentID(r.ID), UserID: parcel.UserID(r.UserID),
		SourceWarehouseID: parcel.WarehouseID(r.SourceWarehouseID),
		DestWarehouseID:   parcel.WarehouseID(r.DestWarehouseID),
		AddressID:         parcel.AddressID(r.AddressID),
		ShippingName:      r.ShippingName, ShippingPhone: r.ShippingPhone, ShippingAddress: r.ShippingAddress,
		ProductCategoryID: r.ProductCategoryID, ProductName: r.ProductName,
		NumberOfPackages: r.NumberOfPackages, Code: r.Code,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	c.Raw, c.Packaged, c.Surcharges, c.DomesticShippingFee = r.Physical.split()
	return c
}

type shipmentRow struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	ConsignmentID uint64 `gorm:"not null;uniqueIndex:idx_shipments_consignment_code"`
	UserID        uint64 `gorm:"not null;index"`
	Code          string `gorm:"size:255;not null;uniqueIndex:idx_shipments_consignment_code"`
	Status        int    `gorm:"not null;default:0"`
	FinanceStatus int    `gorm:"not null;default:0"`
	Physical      `gorm:"embedded"`
	Note          string `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (shipmentRow) TableName() string { return "shipments" }

func shipmentFrom(s *parcel.Shipment) shipmentRow {
	return shipmentRow{
		ID: uint64(s.ID), ConsignmentID: uint64(s.ConsignmentID), UserID: uint64(s.UserID),
		Code: s.Code, Status: int(s.Status), FinanceStatus: int(s.FinanceStatus),
		Physical: physicalOf(s.Raw, s.Packaged, s.Surcharges, s.DomesticShippingFee),
		Note:     s.Note, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

func (r shipmentRow) domain() parcel.Shipment {
	s := parcel.Shipment{
		ID: parcel.ShipmentID(r.ID), ConsignmentID: parcel.ConsignmentID(r.ConsignmentID),
		UserID: parcel.UserID(r.UserID), Code: r.Code,
		Status:        parcel.ShipmentStatus(r.Status),
		FinanceStatus: parcel.FinanceStatus(r.FinanceStatus),
		Note:          r.Note, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	s.Raw, s.Packaged, s.Surcharges, s.DomesticShippingFee = r.Physical.split()
	return s
}

type fulfillmentRow struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	ShipmentID       uint64 `gorm:"not null;uniqueIndex"`
	ConsignmentID    uint64 `gorm:"not null"`
	RecipientName    string `gorm:"size:255;not null"`
	RecipientPhone   string `gorm:"size:32;not null"`
	RecipientAddress string `gorm:"size:1024;not null"`
	Status           int    `gorm:"not null;default:0"`
	ShippingType     int    `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (fulfillmentRow) TableName() string { return "fulfillments" }

func fulfillmentFrom(f *parcel.Fulfillment) fulfillmentRow {
	return fulfillmentRow{
		ID: uint64(f.ID), ShipmentID: uint64(f.ShipmentID), ConsignmentID: uint64(f.ConsignmentID),
		RecipientName: f.RecipientName, RecipientPhone: f.RecipientPhone, RecipientAddress: f.RecipientAddress,
		Status: int(f.Status), ShippingType: int(f.ShippingType),
		CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt,
	}
}

func (r fulfillmentRow) domain() parcel.Fulfillment {
	return parcel.Fulfillment{
		ID: parcel.FulfillmentID(r.ID), ShipmentID: parcel.ShipmentID(r.ShipmentID),
		ConsignmentID: parcel.ConsignmentID(r.ConsignmentID),
		RecipientName: r.RecipientName, RecipientPhone: r.RecipientPhone, RecipientAddress: r.RecipientAddress,
		Status:       parcel.FulfillmentStatus(r.Status),
		ShippingType: parcel.ShippingType(r.ShippingType),
		CreatedAt:    r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type userFinanceRow struct {
	UserID    uint64          `gorm:"primaryKey;autoIncrement:false"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (userFinanceRow) TableName() string { return "user_finances" }

type depositBillRow struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement"`
	UserID      uint64          `gorm:"not null;index:idx_deposit_bills_user_status"`
	FullName    string          `gorm:"size:255;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	DepositType int             `gorm:"not null"`
	Note        string          `gorm:"type:text"`
	Status      int             `gorm:"not null;default:1;index:idx_deposit_bills_user_status"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (depositBillRow) TableName() string { return "deposit_bills" }

func depositFrom(b *parcel.DepositBill) depositBillRow {
	return depositBillRow{
		ID: uint64(b.ID), UserID: uint64(b.UserID), FullName: b.FullName, Amount: b.Amount,
		DepositType: int(b.DepositType), Note: b.Note, Status: int(b.Status),
		CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
}

func (r depositBillRow) domain() parcel.DepositBill {
	return parcel.DepositBill{
		ID: parcel.DepositBillID(r.ID), UserID: parcel.UserID(r.UserID), FullName: r.FullName,
		Amount: r.Amount, DepositType: parcel.DepositType(r.DepositType), Note: r.Note,
		Status: parcel.DepositStatus(r.Status), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type exchangeRow struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement"`
	Name            string          `gorm:"size:255;not null"`
	Description     string          `gorm:"type:text"`
	ForeignCurrency string          `gorm:"size:3;not null;default:CNY;index:idx_exchanges_pair"`
	LocalCurrency   string          `gorm:"size:3;not null;default:VND;index:idx_exchanges_pair"`
	Rate            decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Type            int             `gorm:"not null;default:1"`
	IsActive        bool            `gorm:"not null;default:false;index:idx_exchanges_pair"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (exchangeRow) TableName() string { return "exchanges" }

func exchangeFrom(e *parcel.Exchange) exchangeRow {
	return exchangeRow{
		ID: uint64(e.ID), Name: e.Name, Description: e.Description,
		ForeignCurrency: e.ForeignCurrency, LocalCurrency: e.LocalCurrency,
		Rate: e.Rate, Type: int(e.Type), IsActive: e.IsActive,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

func (r exchangeRow) domain() parcel.Exchange {
	return parcel.Exchange{
		ID: parcel.ExchangeID(r.ID), Name: r.Name, Description: r.Description,
		ForeignCurrency: r.ForeignCurrency, LocalCurrency: r.LocalCurrency,
		Rate: r.Rate, Type: parcel.ExchangeType(r.Type), IsActive: r.IsActive,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// changeList is stored as jsonb.
type changeList []parcel.FieldChange

func (c changeList) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]parcel.FieldChange(c))
	return string(raw), err
}

func (c *changeList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), c)
	case []byte:
		return json.Unmarshal(v, c)
	}
	return fmt.Errorf("unsupported changes type %T", src)
}

type changeLogRow struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement"`
	UserID     uint64     `gorm:"not null;index:idx_change_logs_user"`
	ObjectType int        `gorm:"not null;index:idx_change_logs_object;index:idx_change_logs_user"`
	ObjectID   uint64     `gorm:"not null;index:idx_change_logs_object"`
	Action     int        `gorm:"not null"`
	Changes    changeList `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
}

func (changeLogRow) TableName() string { return "change_logs" }

func (r changeLogRow) domain() parcel.ChangeLog {
	return parcel.ChangeLog{
		ID: parcel.ChangeLogID(r.ID), UserID: parcel.UserID(r.UserID),
		ObjectType: parcel.ObjectType(r.ObjectType), ObjectID: r.ObjectID,
		Action: parcel.Action(r.Action), Changes: []parcel.FieldChange(r.Changes),
		CreatedAt: r.CreatedAt,
	}
}

type warehouseRow struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement:false"`
	Code          string          `gorm:"size:32;not null"`
	Name          string          `gorm:"size:255"`
	BaseFee       decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	IsDestination bool            `gorm:"not null;default:false"`
}

func (warehouseRow) TableName() string { return "warehouses" }

type addressRow struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement:false"`
	UserID  uint64 `gorm:"not null;index"`
	Name    string `gorm:"size:255;not null"`
	Phone   string `gorm:"size:32;not null"`
	Address string `gorm:"size:1024;not null"`
}

func (addressRow) TableName() string { return "addresses" }
