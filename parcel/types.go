/*
types.go - Core entities of the consignment pipeline

PURPOSE:
  Defines the data model shared by the state machine, the settlement
  workflows and every store implementation.

ENTITIES:
  Consignment  - one outbound package group owned by a user
  Shipment     - one trackable leg, keyed by its foreign tracking code
  Fulfillment  - last-mile delivery task spawned from a shipment
  UserFinance  - per-user prepaid balance (the ledger row)
  DepositBill  - request to add funds, approved by an administrator
  Exchange     - currency exchange rate between a foreign and local currency
  ChangeLog    - immutable field-level audit record

  Warehouse and Address are owned by external collaborators and reached
  through the Directory interface (see store.go).

MONEY:
  Every amount, fee and physical measure is a decimal.Decimal. Floats are
  never used for money.

SEE ALSO:
  - errors.go: error taxonomy
  - store.go: persistence interfaces
*/
package parcel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID        uint64
	ConsignmentID uint64
	ShipmentID    uint64
	FulfillmentID uint64
	DepositBillID uint64
	ExchangeID    uint64
	ChangeLogID   uint64
	WarehouseID   uint64
	AddressID     uint64
)

// =============================================================================
// SHIPMENT STATUS - ordered lifecycle, never moves backward
// =============================================================================

type ShipmentStatus int

const (
	StatusForeignShipping      ShipmentStatus = 0
	StatusForeignStoreReceived ShipmentStatus = 1
	StatusVNReceived           ShipmentStatus = 2
	StatusVNShipmentRequested  ShipmentStatus = 3
	StatusVNShipped            ShipmentStatus = 4
)

var shipmentStatusNames = map[ShipmentStatus]string{
	StatusForeignShipping:      "FOREIGN_SHIPPING",
	StatusForeignStoreReceived: "FOREIGN_STORE_RECEIVED",
	StatusVNReceived:           "VN_RECEIVED",
	StatusVNShipmentRequested:  "VN_SHIPMENT_REQUESTED",
	StatusVNShipped:            "VN_SHIPPED",
}

func (s ShipmentStatus) String() string {
	if name, ok := shipmentStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ShipmentStatus(%d)", int(s))
}

func (s ShipmentStatus) IsValid() bool {
	_, ok := shipmentStatusNames[s]
	return ok
}

// PastInitial reports whether the shipment has been received at the foreign
// store or later. Weight is frozen in these statuses.
func (s ShipmentStatus) PastInitial() bool {
	return s > StatusForeignShipping
}

// WeightFrozen reports whether weight edits are rejected in this status.
func (s ShipmentStatus) WeightFrozen() bool {
	return s >= StatusVNReceived
}

type FinanceStatus int

const (
	FinanceNotApproved FinanceStatus = 0
	FinanceApproved    FinanceStatus = 1
)

func (s FinanceStatus) String() string {
	switch s {
	case FinanceNotApproved:
		return "NOT_APPROVED"
	case FinanceApproved:
		return "APPROVED"
	}
	return fmt.Sprintf("FinanceStatus(%d)", int(s))
}

func (s FinanceStatus) IsValid() bool {
	return s == FinanceNotApproved || s == FinanceApproved
}

// =============================================================================
// FULFILLMENT ENUMS
// =============================================================================

type FulfillmentStatus int

const (
	FulfillmentWaiting  FulfillmentStatus = 0
	FulfillmentShipping FulfillmentStatus = 1
	FulfillmentShipped  FulfillmentStatus = 2
)

func (s FulfillmentStatus) String() string {
	switch s {
	case FulfillmentWaiting:
		return "WAITING"
	case FulfillmentShipping:
		return "SHIPPING"
	case FulfillmentShipped:
		return "SHIPPED"
	}
	return fmt.Sprintf("FulfillmentStatus(%d)", int(s))
}

func (s FulfillmentStatus) IsValid() bool {
	return s >= FulfillmentWaiting && s <= FulfillmentShipped
}

type ShippingType int

const (
	ShippingBus               ShippingType = 0
	ShippingGHTK              ShippingType = 1
	ShippingVTPost            ShippingType = 2
	ShippingUrbanDelivery     ShippingType = 3
	ShippingPickupAtWarehouse ShippingType = 4
)

func (t ShippingType) String() string {
	switch t {
	case ShippingBus:
		return "BUS_SHIPMENT"
	case ShippingGHTK:
		return "GHTK"
	case ShippingVTPost:
		return "VT_POST"
	case ShippingUrbanDelivery:
		return "URBAN_DELIVERY"
	case ShippingPickupAtWarehouse:
		return "PICKUP_AT_WAREHOUSE"
	}
	return fmt.Sprintf("ShippingType(%d)", int(t))
}

func (t ShippingType) IsValid() bool {
	return t >= ShippingBus && t <= ShippingPickupAtWarehouse
}

// =============================================================================
// DEPOSIT ENUMS
// =============================================================================

type DepositStatus int

const (
	DepositPending     DepositStatus = 1
	DepositApproved    DepositStatus = 2
	DepositNotApproved DepositStatus = 3
)

func (s DepositStatus) String() string {
	switch s {
	case DepositPending:
		return "PENDING"
	case DepositApproved:
		return "APPROVED"
	case DepositNotApproved:
		return "NOT_APPROVED"
	}
	return fmt.Sprintf("DepositStatus(%d)", int(s))
}

func (s DepositStatus) IsValid() bool {
	return s >= DepositPending && s <= DepositNotApproved
}

type DepositType int

const (
	DepositCash    DepositType = 1
	DepositBanking DepositType = 2
)

func (t DepositType) String() string {
	switch t {
	case DepositCash:
		return "CASH"
	case DepositBanking:
		return "BANKING"
	}
	return fmt.Sprintf("DepositType(%d)", int(t))
}

func (t DepositType) IsValid() bool {
	return t == DepositCash || t == DepositBanking
}

type ExchangeType int

const (
	ExchangeBasic ExchangeType = 1
	ExchangePro   ExchangeType = 2
)

func (t ExchangeType) IsValid() bool {
	return t == ExchangeBasic || t == ExchangePro
}

// =============================================================================
// CHANGE LOG TAGS
// =============================================================================

type ObjectType int

const (
	ObjectShipment    ObjectType = 1
	ObjectExchange    ObjectType = 2
	ObjectDepositBill ObjectType = 3
)

func (t ObjectType) String() string {
	switch t {
	case ObjectShipment:
		return "SHIPMENT"
	case ObjectExchange:
		return "EXCHANGE"
	case ObjectDepositBill:
		return "DEPOSIT_BILL"
	}
	return fmt.Sprintf("ObjectType(%d)", int(t))
}

type Action int

const (
	ActionCreate Action = 0
	ActionUpdate Action = 1
	ActionDelete Action = 2
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "CREATE"
	case ActionUpdate:
		return "UPDATE"
	case ActionDelete:
		return "DELETE"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// =============================================================================
// PHYSICAL ATTRIBUTES
// =============================================================================

// Dimensions holds weight and box size. Shipments and consignments carry
// one set for the raw parcel and one for the packaged parcel.
type Dimensions struct {
	Weight decimal.Decimal
	Height decimal.Decimal
	Width  decimal.Decimal
	Length decimal.Decimal
}

// Surcharges pairs each optional handling flag with its fee.
type Surcharges struct {
	ContainsLiquid     bool
	ContainsLiquidFee  decimal.Decimal
	Fragile            bool
	FragileFee         decimal.Decimal
	WoodenPackaging    bool
	WoodenPackagingFee decimal.Decimal
	Insurance          bool
	InsuranceFee       decimal.Decimal
	ItemCountCheck     bool
	ItemCountCheckFee  decimal.Decimal
}

// =============================================================================
// ENTITIES
// =============================================================================

type Consignment struct {
	ID                ConsignmentID
	UserID            UserID
	SourceWarehouseID WarehouseID
	DestWarehouseID   WarehouseID
	AddressID         AddressID

	// Recipient snapshot taken when the consignment was created.
	ShippingName    string
	ShippingPhone   string
	ShippingAddress string

	Raw      Dimensions
	Packaged Dimensions
	Surcharges

	DomesticShippingFee decimal.Decimal
	ProductCategoryID   uint64
	ProductName         string
	NumberOfPackages    int
	Code                string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Shipment struct {
	ID            ShipmentID
	ConsignmentID ConsignmentID
	UserID        UserID
	Code          string
	Status        ShipmentStatus
	FinanceStatus FinanceStatus

	Raw      Dimensions
	Packaged Dimensions
	Surcharges

	DomesticShippingFee decimal.Decimal
	Note                string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Fulfillment struct {
	ID            FulfillmentID
	ShipmentID    ShipmentID
	ConsignmentID ConsignmentID

	// Snapshot copied from the recipient address. Never resynchronized.
	RecipientName    string
	RecipientPhone   string
	RecipientAddress string

	Status       FulfillmentStatus
	ShippingType ShippingType

	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserFinance struct {
	UserID    UserID
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DepositBill struct {
	ID          DepositBillID
	UserID      UserID
	FullName    string
	Amount      decimal.Decimal
	DepositType DepositType
	Note        string
	Status      DepositStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Exchange struct {
	ID              ExchangeID
	Name            string
	Description     string
	ForeignCurrency string
	LocalCurrency   string
	Rate            decimal.Decimal
	Type            ExchangeType
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FieldChange is one entry of a change log diff.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

type ChangeLog struct {
	ID         ChangeLogID
	UserID     UserID
	ObjectType ObjectType
	ObjectID   uint64
	Action     Action
	Changes    []FieldChange
	CreatedAt  time.Time
}

// Warehouse is a source or destination store in the shipping network.
type Warehouse struct {
	ID            WarehouseID
	Code          string
	Name          string
	BaseFee       decimal.Decimal
	IsDestination bool
}

// Address is a user's saved delivery address.
type Address struct {
	ID      AddressID
	UserID  UserID
	Name    string
	Phone   string
	Address string
}
