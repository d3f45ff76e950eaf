package domain

import "strings"

// CleanRut strips everything but digits and the K check digit.
func CleanRut(rut string) string {
	var b strings.Builder
	for _, r := range rut {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'k' || r == 'K':
			b.WriteByte('K')
		}
	}
	return b.String()
}

// ValidRut checks a Chilean RUT: weighted digit sum (2..7 from the right)
// modulo 11, check digit 11-r with 11 mapped to 0 and 10 to K.
func ValidRut(rut string) bool {
	clean := CleanRut(rut)
	if len(clean) < 8 {
		return false
	}
	body, dv := clean[:len(clean)-1], clean[len(clean)-1]

	sum, mul := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		if body[i] < '0' || body[i] > '9' {
			return false
		}
		sum += int(body[i]-'0') * mul
		if mul == 7 {
			mul = 2
		} else {
			mul++
		}
	}

	var want byte
	switch d := 11 - sum%11; d {
	case 11:
		want = '0'
	case 10:
		want = 'K'
	default:
		want = byte('0' + d)
	}
	return dv == want
}
