package widget

import "strings"

// FormatPhone normalizes a phone number to its dialable international
// form. Only the South African country code (27) gets special handling;
// other codes pass through with non-digits stripped.
func FormatPhone(phone, countryCode string) string {
	if phone == "" {
		return ""
	}

	cleaned := stripNonDigits(phone)

	if countryCode == "27" {
		switch {
		case strings.HasPrefix(cleaned, "27") && len(cleaned) == 11:
			return cleaned
		case strings.HasPrefix(cleaned, "0") && len(cleaned) == 10:
			return "27" + cleaned[1:]
		case len(cleaned) == 9:
			return "27" + cleaned
		}
	}

	return cleaned
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
