package services

import (
	"math"

	"github.com/example/freshcut/internal/utils"
)

// Pricing constants, rupees.
const (
	DefaultCurrency = "INR"

	// MinDeliveryFee is the floor for the distance-based fee.
	MinDeliveryFee = 10.0
	// DeliveryFeePerKm is applied to the great-circle distance.
	DeliveryFeePerKm = 10.0
	// FallbackDeliveryFee applies when either coordinate pair is unknown.
	FallbackDeliveryFee = 49.0
	// FreeDeliveryOrderLimit waives the fee for a buyer's first orders:
	// buyers with fewer prior orders than this get free delivery.
	FreeDeliveryOrderLimit = 3
)

// LatLng is a coordinate pair in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// Quote is the fulfillment pricing breakdown for one checkout. The waived
// fee is surfaced separately so free delivery shows up as a line item
// instead of silently disappearing.
type Quote struct {
	Subtotal           float64 `json:"subtotal"`
	RawDeliveryFee     float64 `json:"raw_delivery_fee"`
	DeliveryFee        float64 `json:"delivery_fee"`
	FreeDeliveryWaived float64 `json:"free_delivery_waived"`
	Discount           float64 `json:"discount"`
	Total              float64 `json:"total"`
}

// RoundRupees rounds to currency precision (two decimals).
func RoundRupees(v float64) float64 {
	return math.Round(v*100) / 100
}

// LineTotal prices one cart line: per-kg rate times weight times quantity,
// rounded independently per line.
func LineTotal(unitPricePerKg, weightKg float64, quantity int) float64 {
	return RoundRupees(unitPricePerKg * weightKg * float64(quantity))
}

// DeliveryFeeBetween computes the raw distance-based fee, or the fallback
// when either coordinate pair is unavailable.
func DeliveryFeeBetween(shop, destination *LatLng) float64 {
	if shop == nil || destination == nil {
		return FallbackDeliveryFee
	}

	distanceKm := utils.HaversineKm(shop.Lat, shop.Lng, destination.Lat, destination.Lng)
	fee := math.Round(distanceKm * DeliveryFeePerKm)
	if fee < MinDeliveryFee {
		fee = MinDeliveryFee
	}
	return fee
}

// ComputeQuote assembles the pricing breakdown. priorOrders is the buyer's
// completed-order count, fetched by the caller from order history. The
// discount is clamped so the total can never go negative.
func ComputeQuote(subtotal float64, shop, destination *LatLng, priorOrders int, discount float64) Quote {
	rawFee := DeliveryFeeBetween(shop, destination)

	effectiveFee := rawFee
	waived := 0.0
	if priorOrders < FreeDeliveryOrderLimit {
		effectiveFee = 0
		waived = rawFee
	}

	if discount < 0 {
		discount = 0
	}
	if max := subtotal + effectiveFee; discount > max {
		discount = max
	}

	return Quote{
		Subtotal:           RoundRupees(subtotal),
		RawDeliveryFee:     rawFee,
		DeliveryFee:        effectiveFee,
		FreeDeliveryWaived: waived,
		Discount:           RoundRupees(discount),
		Total:              RoundRupees(subtotal + effectiveFee - discount),
	}
}
