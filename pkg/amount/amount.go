// Package amount normalizes human-entered decimal amounts written in either
// comma-decimal (Turkish) or dot-decimal (English) convention.
package amount

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// ErrParseFailure is returned when the cleaned input is not a valid numeral.
var ErrParseFailure = errors.New("amount: not a valid numeral")

var numeralRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Normalize returns the canonical dot-decimal form of raw without grouping characters.
//
// When both separators appear, the one closer to the end is the decimal separator
// and the other is dropped as thousands grouping. A lone comma is a decimal comma.
func Normalize(raw string) (string, error) {
	cleaned := stripSpaces(norm.NFKC.String(raw))
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty input", ErrParseFailure)
	}

	lastDot := strings.LastIndexByte(cleaned, '.')
	lastComma := strings.LastIndexByte(cleaned, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	case lastComma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	if !numeralRe.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrParseFailure, raw)
	}
	return cleaned, nil
}

// Parse converts raw into a finite float64. Failures always wrap ErrParseFailure.
func Parse(raw string) (float64, error) {
	canonical, err := Normalize(raw)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(canonical, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, fmt.Errorf("%w: %q out of range", ErrParseFailure, raw)
	}
	return value, nil
}

// ParseDecimal applies the same rules as Parse but keeps exact decimal precision.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	canonical, err := Normalize(raw)
	if err != nil {
		return decimal.Zero, err
	}
	value, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrParseFailure, raw)
	}
	return value, nil
}

// Format renders v in the canonical form Parse accepts back unchanged.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
