package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

// excelEpoch is day zero of spreadsheet serial dates (1900 date system).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Serial dates are accepted from 1927-05-18 up to 9999-12-31; smaller
// numbers in a date column are data errors, not dates.
const (
	minSerialDate = 10000
	maxSerialDate = 2958466
)

// ConvertDateTime parses a date cell. Slash dates are month-first.
// Plain numbers in the spreadsheet serial range are read as serial days.
func ConvertDateTime(val string) (time.Time, error) {
	v := strings.TrimSpace(val)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	for _, f := range dateLayouts {
		if t, err := time.Parse(f, v); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial >= minSerialDate && serial < maxSerialDate {
		days := math.Floor(serial)
		frac := serial - days
		t := excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(frac * float64(24*time.Hour)))
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
}

// ConvertToNumber parses a numeric cell, tolerating thousands separators,
// surrounding whitespace and a leading currency symbol.
func ConvertToNumber(val string) (float64, error) {
	v := strings.TrimSpace(val)
	v = strings.TrimLeft(v, "$€£¥")
	v = strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(v)
	if v == "" {
		return 0, fmt.Errorf("empty number")
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a number: %s", val)
	}
	return n, nil
}

// IsNumeric reports whether s parses as a plain integer or decimal.
func IsNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// ConvertDurationHours accepts a clock duration (H:MM or H:MM:SS) or a
// decimal number of hours, optionally suffixed with "h", and returns hours.
func ConvertDurationHours(val string) (float64, error) {
	v := strings.ToLower(strings.TrimSpace(val))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if strings.Contains(v, ":") {
		parts := strings.Split(v, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid duration: %s", val)
		}
		var hours float64
		scale := 1.0
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || (i > 0 && n > 59) {
				return 0, fmt.Errorf("invalid duration: %s", val)
			}
			hours += float64(n) / scale
			scale *= 60
		}
		return math.Round(hours*10000) / 10000, nil
	}
	v = strings.TrimSuffix(strings.TrimSuffix(v, "hours"), "h")
	n, err := ConvertToNumber(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %s", val)
	}
	return n, nil
}

var (
	truthy = map[string]bool{"true": true, "yes": true, "y": true, "1": true, "x": true, "on": true, "active": true, "enabled": true}
	falsy  = map[string]bool{"false": true, "no": true, "n": true, "0": true, "off": true, "inactive": true, "disabled": true, "": true}
)

// ConvertToBool maps a cell onto a boolean using fixed token sets.
// recognized is false when the token is in neither set; the value is then false.
func ConvertToBool(val string) (value, recognized bool) {
	v := strings.ToLower(strings.TrimSpace(val))
	if truthy[v] {
		return true, true
	}
	return false, falsy[v]
}
