package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"bare digits", "5511999990000", "5511999990000"},
		{"formatted", "+55 11 99999-0000", "5511999990000"},
		{"jid", "5511999990000@s.whatsapp.net", "5511999990000"},
		{"jid with device suffix", "5511999990000:12@s.whatsapp.net", "5511999990000"},
		{"parentheses", "+55 (11) 99999-0000", "5511999990000"},
		{"empty", "", ""},
		{"no digits", "abc@xyz", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizePhone(tc.raw))
		})
	}
}
