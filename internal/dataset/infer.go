package dataset

import (
	"strconv"
	"strings"
	"time"
)

// Kind is the coarse type inferred for a column. Inference is by elimination
// over the non-missing cells, so a column keeps the most specific kind that
// every observed value satisfies.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindFloat
	KindBool
	KindDate
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// Numeric reports whether values of this kind participate in numeric
// summaries (describe).
func (k Kind) Numeric() bool {
	return k == KindInteger || k == KindFloat
}

// inferKind picks the most specific kind all non-missing cells satisfy.
// A column with no non-missing cells is text.
func inferKind(cells []string, missing []bool) Kind {
	var seen bool
	allInt := true
	allFloat := true
	allBool := true
	allDate := true
	allTS := true

	for i, v := range cells {
		if missing[i] {
			continue
		}
		seen = true

		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBoolLoose(v); !ok {
				allBool = false
			}
		}
		if allDate {
			if _, ok := parseDateLoose(v); !ok {
				allDate = false
			}
		}
		if allTS {
			if _, ok := parseTimestampLoose(v); !ok {
				allTS = false
			}
		}

		if !allInt && !allFloat && !allBool && !allDate && !allTS {
			break
		}
	}

	if !seen {
		return KindText
	}
	// Prefer more specific kinds.
	switch {
	case allInt:
		return KindInteger
	case allBool:
		return KindBool
	case allDate:
		return KindDate
	case allTS:
		return KindTimestamp
	case allFloat:
		return KindFloat
	default:
		return KindText
	}
}

func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"02.01.2006 15:04:05",
}

func parseDateLoose(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTimestampLoose(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range tsLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isMissingToken reports whether a raw cell counts as missing. Empty and
// whitespace-only cells are missing, as are the usual NA spellings the
// upstream loaders treat as null.
func isMissingToken(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	switch strings.ToLower(s) {
	case "na", "n/a", "nan", "null", "none":
		return true
	}
	return false
}
