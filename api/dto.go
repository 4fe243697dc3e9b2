/*
dto.go - Request and response bodies

PURPOSE:
  JSON contract of the HTTP API. Field names follow the snake_case
  names clients already send (shipment_status, is_fragile_fee, ...).
  Amounts and measures are decimals; they are accepted as JSON numbers
  or strings and always rendered as strings.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Request structs carry validator tags checked by decode(). Domain
  rules (status order, balances) stay in the services.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/parcel-engine/finance"
	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/shipping"
)

// =============================================================================
// SHARED PIECES
// =============================================================================

type DimensionsDTO struct {
	Weight decimal.Decimal `json:"weight"`
	Height decimal.Decimal `json:"height"`
	Width  decimal.Decimal `json:"width"`
	Length decimal.Decimal `json:"length"`
}

type PackagedDTO struct {
	Weight decimal.Decimal `json:"weight_packaged"`
	Height decimal.Decimal `json:"height_packaged"`
	Width  decimal.Decimal `json:"width_packaged"`
	Length decimal.Decimal `json:"length_packaged"`
}

type SurchargesDTO struct {
	ContainsLiquid     bool            `json:"contains_liquid"`
	ContainsLiquidFee  decimal.Decimal `json:"contains_liquid_fee"`
	Fragile            bool            `json:"is_fragile"`
	FragileFee         decimal.Decimal `json:"is_fragile_fee"`
	WoodenPackaging    bool            `json:"wooden_packaging_required"`
	WoodenPackagingFee decimal.Decimal `json:"wooden_packaging_required_fee"`
	Insurance          bool            `json:"insurance_required"`
	InsuranceFee       decimal.Decimal `json:"insurance_required_fee"`
	ItemCountCheck     bool            `json:"item_count_check_required"`
	ItemCountCheckFee  decimal.Decimal `json:"item_count_check_required_fee"`
}

func dimensionsDTO(d parcel.Dimensions) DimensionsDTO {
	return DimensionsDTO{Weight: d.Weight, Height: d.Height, Width: d.Width, Length: d.Length}
}

func packagedDTO(d parcel.Dimensions) PackagedDTO {
	return PackagedDTO{Weight: d.Weight, Height: d.Height, Width: d.Width, Length: d.Length}
}

func surchargesDTO(s parcel.Surcharges) SurchargesDTO {
	return SurchargesDTO(s)
}

// =============================================================================
// SHIPMENTS
// =============================================================================

type ShipmentDTO struct {
	ID            parcel.ShipmentID    `json:"id"`
	ConsignmentID parcel.ConsignmentID `json:"consignment_id"`
	UserID        parcel.UserID        `json:"user_id"`
	Code          string               `json:"foreign_shipment_code"`
	Status        parcel.ShipmentStatus `json:"shipment_status"`
	StatusName    string               `json:"shipment_status_name"`
	FinanceStatus parcel.FinanceStatus `json:"finance_status"`
	DimensionsDTO
	PackagedDTO
	SurchargesDTO
	DomesticShippingFee decimal.Decimal `json:"domestic_shipping_fee"`
	Note                string          `json:"note"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func shipmentDTO(s parcel.Shipment) ShipmentDTO {
	return ShipmentDTO{
		ID: s.ID, ConsignmentID: s.ConsignmentID, UserID: s.UserID, Code: s.Code,
		Status: s.Status, StatusName: s.Status.String(), FinanceStatus: s.FinanceStatus,
		DimensionsDTO: dimensionsDTO(s.Raw), PackagedDTO: packagedDTO(s.Packaged),
		SurchargesDTO:       surchargesDTO(s.Surcharges),
		DomesticShippingFee: s.DomesticShippingFee, Note: s.Note,
		CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

func shipmentDTOs(list []parcel.Shipment) []ShipmentDTO {
	out := make([]ShipmentDTO, 0, len(list))
	for _, s := range list {
		out = append(out, shipmentDTO(s))
	}
	return out
}

// UpdateShipmentRequest is a partial update. Absent fields are left alone.
type UpdateShipmentRequest struct {
	Status        *parcel.ShipmentStatus `json:"shipment_status"`
	FinanceStatus *parcel.FinanceStatus  `json:"finance_status"`

	Weight         *decimal.Decimal `json:"weight"`
	Height         *decimal.Decimal `json:"height"`
	Width          *decimal.Decimal `json:"width"`
	Length         *decimal.Decimal `json:"length"`
	WeightPackaged *decimal.Decimal `json:"weight_packaged"`
	HeightPackaged *decimal.Decimal `json:"height_packaged"`
	WidthPackaged  *decimal.Decimal `json:"width_packaged"`
	LengthPackaged *decimal.Decimal `json:"length_packaged"`

	ContainsLiquid     *bool            `json:"contains_liquid"`
	ContainsLiquidFee  *decimal.Decimal `json:"contains_liquid_fee"`
	Fragile            *bool            `json:"is_fragile"`
	FragileFee         *decimal.Decimal `json:"is_fragile_fee"`
	WoodenPackaging    *bool            `json:"wooden_packaging_required"`
	WoodenPackagingFee *decimal.Decimal `json:"wooden_packaging_required_fee"`
	Insurance          *bool            `json:"insurance_required"`
	InsuranceFee       *decimal.Decimal `json:"insurance_required_fee"`
	ItemCountCheck     *bool            `json:"item_count_check_required"`
	ItemCountCheckFee  *decimal.Decimal `json:"item_count_check_required_fee"`

	DomesticShippingFee *decimal.Decimal `json:"domestic_shipping_fee"`
	Note                *string          `json:"note" validate:"omitempty,max=2048"`
}

func (r UpdateShipmentRequest) toUpdate() shipping.ShipmentUpdate {
	return shipping.ShipmentUpdate{
		Status: r.Status, FinanceStatus: r.FinanceStatus,
		Weight: r.Weight, Height: r.Height, Width: r.Width, Length: r.Length,
		WeightPackaged: r.WeightPackaged, HeightPackaged: r.HeightPackaged,
		WidthPackaged: r.WidthPackaged, LengthPackaged: r.LengthPackaged,
		ContainsLiquid: r.ContainsLiquid, ContainsLiquidFee: r.ContainsLiquidFee,
		Fragile: r.Fragile, FragileFee: r.FragileFee,
		WoodenPackaging: r.WoodenPackaging, WoodenPackagingFee: r.WoodenPackagingFee,
		Insurance: r.Insurance, InsuranceFee: r.InsuranceFee,
		ItemCountCheck: r.ItemCountCheck, ItemCountCheckFee: r.ItemCountCheckFee,
		DomesticShippingFee: r.DomesticShippingFee, Note: r.Note,
	}
}

type TransitionDTO struct {
	Shipment    ShipmentDTO          `json:"shipment"`
	From        string               `json:"from"`
	Changes     []parcel.FieldChange `json:"changes"`
	Fulfillment *FulfillmentDTO      `json:"fulfillment,omitempty"`
	Fee         *decimal.Decimal     `json:"fee,omitempty"`
	Balance     *decimal.Decimal     `json:"balance,omitempty"`
}

func transitionDTO(res *shipping.TransitionResult) TransitionDTO {
	out := TransitionDTO{
		Shipment: shipmentDTO(res.Shipment),
		From:     res.From.String(),
		Changes:  res.Changes,
	}
	if out.Changes == nil {
		out.Changes = []parcel.FieldChange{}
	}
	if res.Fulfillment != nil {
		f := fulfillmentDTO(*res.Fulfillment)
		fee, balance := res.Fee, res.Balance
		out.Fulfillment, out.Fee, out.Balance = &f, &fee, &balance
	}
	return out
}

// =============================================================================
// CONSIGNMENTS
// =============================================================================

type ConsignmentDTO struct {
	ID                parcel.ConsignmentID `json:"id"`
	UserID            parcel.UserID        `json:"user_id"`
	Code              string               `json:"code"`
	SourceWarehouseID parcel.WarehouseID   `json:"source_warehouse_id"`
	DestWarehouseID   parcel.WarehouseID   `json:"dest_warehouse_id"`
	AddressID         parcel.AddressID     `json:"address_id"`
	ShippingName      string               `json:"shipping_name"`
	ShippingPhone     string               `json:"shipping_phone"`
	ShippingAddress   string               `json:"shipping_address"`
	DimensionsDTO
	PackagedDTO
	SurchargesDTO
	DomesticShippingFee decimal.Decimal `json:"domestic_shipping_fee"`
	ProductCategoryID   uint64          `json:"product_category_id"`
	ProductName         string          `json:"product_name"`
	NumberOfPackages    int             `json:"number_of_packages"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func consignmentDTO(c parcel.Consignment) ConsignmentDTO {
	return ConsignmentDTO{
		ID: c.ID, UserID: c.UserID, Code: c.Code,
		SourceWarehouseID: c.SourceWarehouseID, DestWarehouseID: c.DestWarehouseID,
		AddressID: c.AddressID, ShippingName: c.ShippingName, ShippingPhone: c.ShippingPhone,
		ShippingAddress: c.ShippingAddress,
		DimensionsDTO:   dimensionsDTO(c.Raw), PackagedDTO: packagedDTO(c.Packaged),
		SurchargesDTO:       surchargesDTO(c.Surcharges),
		DomesticShippingFee: c.DomesticShippingFee,
		ProductCategoryID:   c.ProductCategoryID, ProductName: c.ProductName,
		NumberOfPackages: c.NumberOfPackages, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

type ConsignmentRequest struct {
	// UserID is honored for staff and admins only; users always act for themselves.
	UserID            parcel.UserID      `json:"user_id"`
	SourceWarehouseID parcel.WarehouseID `json:"source_warehouse_id" validate:"required"`
	DestWarehouseID   parcel.WarehouseID `json:"dest_warehouse_id" validate:"required"`
	AddressID         parcel.AddressID   `json:"address_id" validate:"required"`
	DimensionsDTO
	PackagedDTO
	SurchargesDTO
	DomesticShippingFee decimal.Decimal `json:"domestic_shipping_fee"`
	ProductCategoryID   uint64          `json:"product_category_id"`
	ProductName         string          `json:"product_name" validate:"max=255"`
	NumberOfPackages    int             `json:"number_of_packages" validate:"gte=0"`
	ForeignCodes        []string        `json:"foreign_shipment_codes" validate:"dive,max=128"`
	// Mode is "merge" (default) or "replace"; only read on update.
	Mode string `json:"mode" validate:"omitempty,oneof=merge replace"`
}

func (r ConsignmentRequest) toInput(owner parcel.UserID) shipping.ConsignmentInput {
	return shipping.ConsignmentInput{
		UserID:            owner,
		SourceWarehouseID: r.SourceWarehouseID,
		DestWarehouseID:   r.DestWarehouseID,
		AddressID:         r.AddressID,
		Raw:               parcel.Dimensions(r.DimensionsDTO),
		Packaged:          parcel.Dimensions(r.PackagedDTO),
		Surcharges:        parcel.Surcharges(r.SurchargesDTO),
		DomesticShippingFee: r.DomesticShippingFee,
		ProductCategoryID:   r.ProductCategoryID,
		ProductName:         r.ProductName,
		NumberOfPackages:    r.NumberOfPackages,
		ForeignCodes:        r.ForeignCodes,
	}
}

func parseMode(s string) shipping.ReconcileMode {
	if s == "replace" {
		return shipping.ReplaceCodes
	}
	return shipping.MergeCodes
}

type ReconcileRequest struct {
	Codes []string `json:"foreign_shipment_codes" validate:"required,min=1,dive,max=128"`
	Mode  string   `json:"mode" validate:"omitempty,oneof=merge replace"`
}

type ReconcileDTO struct {
	Created   []ShipmentDTO `json:"created"`
	Updated   []ShipmentDTO `json:"updated"`
	Unchanged []ShipmentDTO `json:"unchanged"`
	Retained  []ShipmentDTO `json:"retained"`
	Removed   []ShipmentDTO `json:"removed"`
}

func reconcileDTO(res *shipping.ReconcileResult) ReconcileDTO {
	if res == nil {
		res = &shipping.ReconcileResult{}
	}
	return ReconcileDTO{
		Created:   shipmentDTOs(res.Created),
		Updated:   shipmentDTOs(res.Updated),
		Unchanged: shipmentDTOs(res.Unchanged),
		Retained:  shipmentDTOs(res.Retained),
		Removed:   shipmentDTOs(res.Removed),
	}
}

type ConsignmentResultDTO struct {
	Consignment ConsignmentDTO `json:"consignment"`
	Shipments   ReconcileDTO   `json:"shipments"`
}

// =============================================================================
// FULFILLMENTS
// =============================================================================

type FulfillmentDTO struct {
	ID               parcel.FulfillmentID     `json:"id"`
	ShipmentID       parcel.ShipmentID        `json:"shipment_id"`
	ConsignmentID    parcel.ConsignmentID     `json:"consignment_id"`
	RecipientName    string                   `json:"recipient_name"`
	RecipientPhone   string                   `json:"recipient_phone"`
	RecipientAddress string                   `json:"recipient_address"`
	Status           parcel.FulfillmentStatus `json:"status"`
	StatusName       string                   `json:"status_name"`
	ShippingType     parcel.ShippingType      `json:"shipping_type"`
	ShippingTypeName string                   `json:"shipping_type_name"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func fulfillmentDTO(f parcel.Fulfillment) FulfillmentDTO {
	return FulfillmentDTO{
		ID: f.ID, ShipmentID: f.ShipmentID, ConsignmentID: f.ConsignmentID,
		RecipientName: f.RecipientName, RecipientPhone: f.RecipientPhone, RecipientAddress: f.RecipientAddress,
		Status: f.Status, StatusName: f.Status.String(),
		ShippingType: f.ShippingType, ShippingTypeName: f.ShippingType.String(),
		CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt,
	}
}

type UpdateFulfillmentRequest struct {
	Status       *parcel.FulfillmentStatus `json:"status"`
	ShippingType *parcel.ShippingType      `json:"shipping_type"`
}

// =============================================================================
// DEPOSIT BILLS AND BALANCE
// =============================================================================

type DepositBillDTO struct {
	ID          parcel.DepositBillID `json:"id"`
	UserID      parcel.UserID        `json:"user_id"`
	FullName    string               `json:"full_name"`
	Amount      decimal.Decimal      `json:"amount"`
	DepositType parcel.DepositType   `json:"deposit_type"`
	Note        string               `json:"note"`
	Status      parcel.DepositStatus `json:"status"`
	StatusName  string               `json:"status_name"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func depositBillDTO(b parcel.DepositBill) DepositBillDTO {
	return DepositBillDTO{
		ID: b.ID, UserID: b.UserID, FullName: b.FullName, Amount: b.Amount,
		DepositType: b.DepositType, Note: b.Note, Status: b.Status, StatusName: b.Status.String(),
		CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
}

type CreateDepositBillRequest struct {
	UserID      parcel.UserID      `json:"user_id"`
	FullName    string             `json:"full_name" validate:"required,max=255"`
	Amount      decimal.Decimal    `json:"amount"`
	DepositType parcel.DepositType `json:"deposit_type" validate:"required"`
	Note        string             `json:"note" validate:"max=2048"`
}

func (r CreateDepositBillRequest) toInput(owner parcel.UserID) finance.DepositInput {
	return finance.DepositInput{
		UserID: owner, FullName: r.FullName, Amount: r.Amount,
		DepositType: r.DepositType, Note: r.Note,
	}
}

type ApproveDepositRequest struct {
	Status parcel.DepositStatus `json:"status" validate:"required"`
}

type SettlementDTO struct {
	Bill     DepositBillDTO   `json:"bill"`
	Credited bool             `json:"credited"`
	Balance  *decimal.Decimal `json:"balance,omitempty"`
}

type BalanceDTO struct {
	UserID  parcel.UserID   `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// =============================================================================
// EXCHANGES
// =============================================================================

type ExchangeDTO struct {
	ID              parcel.ExchangeID   `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	ForeignCurrency string              `json:"foreign_currency"`
	LocalCurrency   string              `json:"local_currency"`
	Rate            decimal.Decimal     `json:"exchange_rate"`
	Type            parcel.ExchangeType `json:"type"`
	IsActive        bool                `json:"is_active"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func exchangeDTO(e parcel.Exchange) ExchangeDTO {
	return ExchangeDTO{
		ID: e.ID, Name: e.Name, Description: e.Description,
		ForeignCurrency: e.ForeignCurrency, LocalCurrency: e.LocalCurrency,
		Rate: e.Rate, Type: e.Type, IsActive: e.IsActive,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

type CreateExchangeRequest struct {
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	ForeignCurrency string              `json:"foreign_currency"`
	LocalCurrency   string              `json:"local_currency"`
	Rate            decimal.Decimal     `json:"exchange_rate"`
	Type            parcel.ExchangeType `json:"type"`
	IsActive        bool                `json:"is_active"`
}

func (r CreateExchangeRequest) toInput() finance.ExchangeInput {
	return finance.ExchangeInput{
		Name: r.Name, Description: r.Description,
		ForeignCurrency: r.ForeignCurrency, LocalCurrency: r.LocalCurrency,
		Rate: r.Rate, Type: r.Type, IsActive: r.IsActive,
	}
}

type UpdateExchangeRequest struct {
	Name            *string              `json:"name" validate:"omitempty,max=255"`
	Description     *string              `json:"description" validate:"omitempty,max=2048"`
	ForeignCurrency *string              `json:"foreign_currency"`
	LocalCurrency   *string              `json:"local_currency"`
	Rate            *decimal.Decimal     `json:"exchange_rate"`
	Type            *parcel.ExchangeType `json:"type"`
	IsActive        *bool                `json:"is_active"`
}

func (r UpdateExchangeRequest) toUpdate() finance.ExchangeUpdate {
	return finance.ExchangeUpdate(r)
}

type ExchangeUpdateDTO struct {
	Exchange ExchangeDTO          `json:"exchange"`
	Changes  []parcel.FieldChange `json:"changes"`
}

// =============================================================================
// CHANGE LOGS AND DIRECTORY
// =============================================================================

type ChangeLogDTO struct {
	ID         parcel.ChangeLogID   `json:"id"`
	UserID     parcel.UserID        `json:"user_id"`
	ObjectType string               `json:"object_type"`
	ObjectID   uint64               `json:"object_id"`
	Action     string               `json:"action"`
	Changes    []parcel.FieldChange `json:"changes"`
	CreatedAt  time.Time            `json:"created_at"`
}

func changeLogDTO(l parcel.ChangeLog) ChangeLogDTO {
	changes := l.Changes
	if changes == nil {
		changes = []parcel.FieldChange{}
	}
	return ChangeLogDTO{
		ID: l.ID, UserID: l.UserID, ObjectType: l.ObjectType.String(), ObjectID: l.ObjectID,
		Action: l.Action.String(), Changes: changes, CreatedAt: l.CreatedAt,
	}
}

type WarehouseRequest struct {
	Code          string          `json:"code" validate:"required,max=32"`
	Name          string          `json:"name" validate:"max=255"`
	BaseFee       decimal.Decimal `json:"base_fee"`
	IsDestination bool            `json:"is_destination"`
}

type AddressRequest struct {
	UserID  parcel.UserID `json:"user_id" validate:"required"`
	Name    string        `json:"name" validate:"required,max=255"`
	Phone   string        `json:"phone" validate:"required,max=32"`
	Address string        `json:"address" validate:"required,max=1024"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}
