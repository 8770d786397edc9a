package utils

import "strings"

// NormalizePhone canonicalizes a raw sender address into a digits-only phone
// form. Provider addresses may arrive as JIDs ("5511999990000@s.whatsapp.net"),
// formatted numbers ("+55 11 99999-0000") or bare digits; all collapse to the
// same canonical value.
func NormalizePhone(raw string) string {
	addr := raw
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		addr = addr[:at]
	}
	// Device suffixes like "5511999990000:12" are not part of the number
	if colon := strings.IndexByte(addr, ':'); colon >= 0 {
		addr = addr[:colon]
	}

	var b strings.Builder
	b.Grow(len(addr))
	for _, r := range addr {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
