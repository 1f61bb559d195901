package render

import (
	"math"
	"strconv"
	"strings"
)

// FormatCount abbreviates a cluster count: plain below 1000, then one
// decimal of K or M ("1K", "1.5K", "2M").  Values are floored so a label
// never overstates the count.
func FormatCount(n int) string {
	switch {
	case n < 0:
		return "0"
	case n < 1000:
		return strconv.Itoa(n)
	case n < 1_000_000:
		return trimmed(math.Floor(float64(n)/100)/10, 1) + "K"
	default:
		return trimmed(math.Floor(float64(n)/100_000)/10, 1) + "M"
	}
}

// FormatPrice abbreviates a price tag: "$950", "$650K", "$85.5K", "$1.25M".
func FormatPrice(price float64) string {
	if math.IsNaN(price) || price <= 0 {
		return "$0"
	}
	switch {
	case price < 1000:
		return "$" + strconv.FormatFloat(math.Round(price), 'f', 0, 64)
	case price < 999_500:
		k := price / 1000
		if k < 100 {
			return "$" + trimmed(math.Round(k*10)/10, 1) + "K"
		}
		return "$" + strconv.FormatFloat(math.Round(k), 'f', 0, 64) + "K"
	case price < 999_995_000:
		return "$" + trimmed(math.Round(price/10_000)/100, 2) + "M"
	default:
		return "$" + trimmed(math.Round(price/10_000_000)/100, 2) + "B"
	}
}

func trimmed(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

//Personal.AI order the ending
