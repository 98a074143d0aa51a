package faults

import (
	"fmt"
	"time"
)

// WireDateTimeFormat documents the TimeOfFailure header layout: UTC, microsecond
// precision, a colon before the fraction and a literal " Z" suffix,
// e.g. "2026-10-16 08:30:05:123456 Z". Values sort lexically in time order.
const WireDateTimeFormat = "yyyy-MM-dd HH:mm:ss:ffffff Z"

// Go cannot express a colon-separated fraction, so the layout uses '.' at
// fractionSeparatorIndex and the separator is swapped on the way in and out.
const (
	wireLayout             = "2006-01-02 15:04:05.000000 Z"
	fractionSeparatorIndex = len("2006-01-02 15:04:05")
)

// ToWireFormattedString renders t in UTC using WireDateTimeFormat.
// Sub-microsecond precision is truncated.
func ToWireFormattedString(t time.Time) string {
	b := []byte(t.UTC().Format(wireLayout))
	b[fractionSeparatorIndex] = ':'
	return string(b)
}

// FromWireFormattedString parses a value produced by ToWireFormattedString
func FromWireFormattedString(s string) (time.Time, error) {
	if len(s) != len(wireLayout) || s[fractionSeparatorIndex] != ':' {
		return time.Time{}, fmt.Errorf("invalid wire time %q: expected format %s", s, WireDateTimeFormat)
	}
	b := []byte(s)
	b[fractionSeparatorIndex] = '.'
	t, err := time.Parse(wireLayout, string(b))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid wire time %q: %w", s, err)
	}
	return t.UTC(), nil
}
