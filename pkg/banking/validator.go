// Package banking holds validators for Brazilian banking documents and
// contact data. CPF and CNPJ use the Módulo 11 check-digit scheme.
//
// All validators are pure and return false on malformed input instead of
// failing, so they are safe to call on raw request values.
package banking

import (
	"regexp"
	"strings"
)

var (
	cpfPattern   = regexp.MustCompile(`^(\d{11}|\d{3}\.\d{3}\.\d{3}-\d{2})$`)
	cnpjPattern  = regexp.MustCompile(`^(\d{14}|\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2})$`)
	phonePattern = regexp.MustCompile(`^\(?\d{2}\)?[\s-]?\d{4,5}[\s-]?\d{4}$`)
)

var (
	cnpjWeightsFirst  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// CleanDocument strips every non-digit character.
func CleanDocument(document string) string {
	var b strings.Builder
	b.Grow(len(document))
	for _, r := range document {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsCPFFormat reports whether raw is 11 bare digits or the dotted
// 000.000.000-00 form. It does not check the verification digits.
func IsCPFFormat(raw string) bool {
	return cpfPattern.MatchString(raw)
}

// IsCNPJFormat is the CNPJ counterpart of IsCPFFormat.
func IsCNPJFormat(raw string) bool {
	return cnpjPattern.MatchString(raw)
}

// IsValidCPF validates a CPF in any formatting.
func IsValidCPF(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	digits := toDigits(CleanDocument(raw))
	if len(digits) != 11 || allSame(digits) {
		return false
	}
	first := checkDigit(digits[:9], descendingWeights(10, 9))
	second := checkDigit(digits[:10], descendingWeights(11, 10))
	return first == digits[9] && second == digits[10]
}

// IsValidCNPJ validates a CNPJ in any formatting.
func IsValidCNPJ(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	digits := toDigits(CleanDocument(raw))
	if len(digits) != 14 || allSame(digits) {
		return false
	}
	first := checkDigit(digits[:12], cnpjWeightsFirst)
	second := checkDigit(digits[:13], cnpjWeightsSecond)
	return first == digits[12] && second == digits[13]
}

// IsValidPhone accepts Brazilian numbers such as "(11) 99999-9999",
// "11 3333-4444" or "11999999999".
func IsValidPhone(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	return phonePattern.MatchString(raw)
}

// IsValidEmail is a coarse shape check: an '@', a '.', and 5 to 100 characters.
func IsValidEmail(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	return strings.Contains(raw, "@") &&
		strings.Contains(raw, ".") &&
		len(raw) >= 5 && len(raw) <= 100
}

// FormatCPF masks a valid CPF as 123.***.***-09 for logs and responses.
// Invalid input is returned unchanged.
func FormatCPF(raw string) string {
	if !IsValidCPF(raw) {
		return raw
	}
	c := CleanDocument(raw)
	return c[:3] + ".***.***-" + c[9:]
}

// FormatCNPJ masks a valid CNPJ as 12.***.***/0001-95. Invalid input is
// returned unchanged.
func FormatCNPJ(raw string) string {
	if !IsValidCNPJ(raw) {
		return raw
	}
	c := CleanDocument(raw)
	return c[:2] + ".***.***/" + c[8:12] + "-" + c[12:]
}

// MaskCPF masks any 11-digit value without checking its verification
// digits. Used when logging identifiers that may not be valid CPFs, such
// as seeded accounts.
func MaskCPF(raw string) string {
	c := CleanDocument(raw)
	if len(c) != 11 {
		return raw
	}
	return c[:3] + ".***.***-" + c[9:]
}

func checkDigit(digits, weights []int) int {
	sum := 0
	for i, d := range digits {
		sum += d * weights[i]
	}
	dv := 11 - sum%11
	if dv >= 10 {
		return 0
	}
	return dv
}

func descendingWeights(start, n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = start - i
	}
	return w
}

func toDigits(s string) []int {
	out := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = int(s[i] - '0')
	}
	return out
}

func allSame(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}
