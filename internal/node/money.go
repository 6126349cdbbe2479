package node

import (
	"math"
	"strconv"
	"strings"
)

// scaleDigits returns the number of fractional digits for a rational-part scale.
// Only powers of ten are valid scales.
func scaleDigits(scale int64) (int, bool) {
	if scale < 1 {
		return 0, false
	}
	digits := 0
	for scale > 1 {
		if scale%10 != 0 {
			return 0, false
		}
		scale /= 10
		digits++
	}
	return digits, true
}

// ParseMoney converts a decimal money string ("1.5", "-0.00010000", "12") into
// fixed-point units of the given scale. It never goes through float64.
// Fractional digits beyond the scale are accepted only when they are zeros.
func ParseMoney(s string, scale int64) (int64, bool) {
	digits, ok := scaleDigits(scale)
	if !ok || s == "" {
		return 0, false
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	if intPart == "" && frac == "" {
		return 0, false
	}
	if len(frac) > digits {
		if strings.Trim(frac[digits:], "0") != "" {
			return 0, false
		}
		frac = frac[:digits]
	}

	var whole int64
	for i := 0; i < len(intPart); i++ {
		d := intPart[i]
		if d < '0' || d > '9' {
			return 0, false
		}
		if whole > (math.MaxInt64-int64(d-'0'))/10 {
			return 0, false
		}
		whole = whole*10 + int64(d-'0')
	}
	if whole > math.MaxInt64/scale {
		return 0, false
	}
	value := whole * scale

	var fraction int64
	for i := 0; i < digits; i++ {
		fraction *= 10
		if i < len(frac) {
			d := frac[i]
			if d < '0' || d > '9' {
				return 0, false
			}
			fraction += int64(d - '0')
		}
	}
	if value > math.MaxInt64-fraction {
		return 0, false
	}
	value += fraction
	if neg {
		value = -value
	}
	return value, true
}

// FormatMoney renders a fixed-point value with exactly as many fractional
// digits as the scale implies. Invalid scales render the raw integer.
func FormatMoney(value int64, scale int64) string {
	digits, ok := scaleDigits(scale)
	if !ok || digits == 0 {
		return strconv.FormatInt(value, 10)
	}
	sign := ""
	abs := uint64(value)
	if value < 0 {
		sign = "-"
		abs = uint64(-(value + 1)) + 1
	}
	frac := strconv.FormatUint(abs%uint64(scale), 10)
	return sign + strconv.FormatUint(abs/uint64(scale), 10) + "." + strings.Repeat("0", digits-len(frac)) + frac
}
