package shipping

import (
	"github.com/shopspring/decimal"

	"github.com/warp/parcel-engine/parcel"
)

// ShippingFee returns the last-mile fee:
//
//	base*weight + wooden + insurance + domestic
//
// Liquid, fragile and item-count fees are tracked on the shipment but are
// not part of the last-mile fee.
func ShippingFee(base, weight, wooden, insurance, domestic decimal.Decimal) (decimal.Decimal, error) {
	for _, in := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"base_fee", base},
		{"weight", weight},
		{"wooden_packaging_fee", wooden},
		{"insurance_fee", insurance},
		{"domestic_shipping_fee", domestic},
	} {
		if in.value.IsNegative() {
			return decimal.Zero, parcel.InvalidArgument(in.name, "must not be negative")
		}
	}
	return base.Mul(weight).Add(wooden).Add(insurance).Add(domestic), nil
}

// FeeFor applies ShippingFee to a shipment bound for w.
func FeeFor(w parcel.Warehouse, s parcel.Shipment) (decimal.Decimal, error) {
	return ShippingFee(w.BaseFee, s.Raw.Weight, s.WoodenPackagingFee, s.InsuranceFee, s.DomesticShippingFee)
}
