package domain

import "math"

// Currency is the settlement currency for all marketplace orders.
const Currency = "INR"

// RoundMoney rounds a rupee amount to two decimal places. Intermediate
// arithmetic stays unrounded; only snapshot boundaries round.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToMinorUnits converts a rupee amount to integer paise for gateway calls.
func ToMinorUnits(v float64) int64 {
	return int64(math.Round(v * 100))
}

// FromMinorUnits converts integer paise back to a rupee amount.
func FromMinorUnits(v int64) float64 {
	return float64(v) / 100
}
