package core

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatMoney formats an amount expressed in minor units (kobo, cents...) eg. "NGN 12,500.50".
func FormatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	major := strconv.FormatInt(amount/100, 10)
	var b strings.Builder
	for i, r := range major {
		if i > 0 && (len(major)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, b.String(), amount%100)
}

// Percent returns `rate` of `amount`, rounded half up to the nearest minor unit.
func Percent(amount int64, rate float64) int64 {
	v := float64(amount) * rate
	if v < 0 {
		return -int64(-v + 0.5)
	}
	return int64(v + 0.5)
}
