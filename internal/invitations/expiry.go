package invitations

import (
	"math"
	"time"
)

// DefaultExpiryDays applies whenever a requested lifetime is not a positive whole number of days.
const DefaultExpiryDays = 7

// CalculateExpiry returns now plus days. Non-positive values fall back to DefaultExpiryDays.
func CalculateExpiry(now time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultExpiryDays
	}
	return now.Add(time.Duration(days) * 24 * time.Hour)
}

// CalculateExpiryFloat is CalculateExpiry for untyped input such as a decoded
// JSON number. NaN, infinities, fractions and values too large for an int all
// fall back to DefaultExpiryDays.
func CalculateExpiryFloat(now time.Time, days float64) time.Time {
	if math.IsNaN(days) || math.IsInf(days, 0) || days != math.Trunc(days) || days <= 0 || days > math.MaxInt32 {
		return CalculateExpiry(now, DefaultExpiryDays)
	}
	return CalculateExpiry(now, int(days))
}
