package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/datapress/ingest/pkg/models"
)

// CoerceValue converts a raw CSV field into the Go value matching the
// column's declared type. An empty field becomes nil (SQL NULL) unless
// the column is required, in which case it is an error.
func CoerceValue(raw string, col models.Column) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if col.Required {
			return nil, fmt.Errorf("missing required value")
		}
		return nil, nil
	}

	switch col.Type {
	case models.TypeString:
		return raw, nil
	case models.TypeInt:
		return ConvertToInt64(raw)
	case models.TypeFloat:
		return strconv.ParseFloat(raw, 64)
	case models.TypeBool:
		return ConvertToBool(raw)
	case models.TypeDatetime:
		return ConvertDateTime(raw, col.Format)
	case models.TypeDate:
		return ConvertDate(raw, col.Format)
	default:
		return nil, fmt.Errorf("unsupported column type: %s", col.Type)
	}
}

// ConvertToInt64 parses integers, tolerating float-formatted values that
// are whole numbers ("1.0"), which CSV exports produce for int columns.
func ConvertToInt64(raw string) (int64, error) {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to int", raw)
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("cannot convert %q to int", raw)
	}
	return int64(f), nil
}

func ConvertToBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	default:
		return false, fmt.Errorf("cannot convert %q to bool", raw)
	}
}

var datetimeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ConvertDateTime parses a timestamp, trying the explicit format first
// and falling back to a set of common layouts.
func ConvertDateTime(raw string, format string) (time.Time, error) {
	if format != "" {
		if t, err := time.Parse(format, raw); err == nil {
			return t, nil
		}
	}
	for _, f := range datetimeFormats {
		if t, err := time.Parse(f, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime: %s", raw)
}

// ConvertDate parses a calendar date (no time component).
func ConvertDate(raw string, format string) (time.Time, error) {
	if format == "" {
		format = "2006-01-02"
	}
	t, err := time.Parse(format, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date: %s", raw)
	}
	return t, nil
}
