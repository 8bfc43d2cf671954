package strategy

// stopLossHit reports whether a long position's stop is breached at price.
// A stop of zero or less is disabled.
func stopLossHit(price, stop float64) bool {
	if stop <= 0 || price <= 0 {
		return false
	}
	return price <= stop
}

// takeProfitHit reports whether a long position's target is reached at price.
// A target of zero or less is disabled.
func takeProfitHit(price, target float64) bool {
	if target <= 0 || price <= 0 {
		return false
	}
	return price >= target
}
