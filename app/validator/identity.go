package validator

var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// IsValidCUIT checks an 11-digit CUIT/CUIL against its check digit.
// Remainders 0 and 1 are their own check digit.
func IsValidCUIT(value string) bool {
	if len(value) != 11 || !allDigits(value) {
		return false
	}

	sum := 0
	for i, w := range cuitWeights {
		sum += int(value[i]-'0') * w
	}

	check := sum % 11
	if check >= 2 {
		check = 11 - check
	}
	return int(value[10]-'0') == check
}

// IsValidDNI accepts 7 or 8 digits.
func IsValidDNI(value string) bool {
	return (len(value) == 7 || len(value) == 8) && allDigits(value)
}

func allDigits(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return value != ""
}
