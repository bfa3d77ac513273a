// Package luhn checks the mod-10 check digit carried by card numbers.
package luhn

// Validate reports whether number, a string of ASCII digits, ends in a
// valid Luhn check digit. Empty input and non-digits are invalid.
func Validate(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
