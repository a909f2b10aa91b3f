package models

import (
	"fmt"
	"strconv"
	"strings"
)

// AccessionNumber is the canonical, with-separator form of an EDGAR
// accession number ("0001234567-25-000001"). All internal comparisons use
// this form; URL and filename construction uses Compact() exclusively.
type AccessionNumber string

// ParseAccession accepts either textual representation of an accession
// number (with or without separators) and returns the canonical dashed
// form. It is total over valid inputs: any valid input maps to exactly one
// canonical output.
func ParseAccession(s string) (AccessionNumber, error) {
	digits := strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	if len(digits) != 18 {
		return "", fmt.Errorf("accession number %q must contain 18 digits, got %d", s, len(digits))
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("accession number %q contains non-digit %q", s, r)
		}
	}
	return AccessionNumber(digits[0:10] + "-" + digits[10:12] + "-" + digits[12:18]), nil
}

// String returns the canonical dashed form.
func (a AccessionNumber) String() string {
	return string(a)
}

// Compact returns the separator-free form used in URLs and filenames.
func (a AccessionNumber) Compact() string {
	return strings.ReplaceAll(string(a), "-", "")
}

// Year returns the four-digit filing year encoded in the middle segment.
// EDGAR accession numbers only exist post-1993, so two-digit years below 90
// resolve to the 2000s.
func (a AccessionNumber) Year() int {
	parts := strings.Split(string(a), "-")
	if len(parts) != 3 {
		return 0
	}
	yy, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	if yy >= 90 {
		return 1900 + yy
	}
	return 2000 + yy
}

// PadCIK normalizes a CIK to the ten-digit zero-padded form used as the
// natural entity key.
func PadCIK(cik string) string {
	trimmed := TrimCIK(cik)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%010s", trimmed)
}

// TrimCIK strips leading zeros; EDGAR archive URLs use this form.
func TrimCIK(cik string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" && strings.TrimSpace(cik) != "" {
		return "0"
	}
	return trimmed
}
