package models

import (
	"time"
)

// FilingStatus is the terminal outcome recorded for one filing.
type FilingStatus string

const (
	StatusCompleted     FilingStatus = "completed"
	StatusFetchFailed   FilingStatus = "fetch_failed"
	StatusExtractFailed FilingStatus = "extract_failed"
	StatusPersistFailed FilingStatus = "persist_failed"
)

// FilingReference identifies one submission as handed in by an external
// index collector. The CIK here may be the reporting owner's, not the
// issuer's; the extractor's issuer CIK is authoritative downstream.
type FilingReference struct {
	AccessionNumber AccessionNumber `json:"accession_number"`
	CIK             string          `json:"cik"`
	FormType        string          `json:"form_type"`
	FilingDate      time.Time       `json:"filing_date"`
}

// EmbeddedDocument is one document carved out of an SGML submission.
// Created fresh on every split, never mutated, superseded on reprocessing.
type EmbeddedDocument struct {
	Sequence    int     `json:"sequence"`
	Type        string  `json:"type"`
	Filename    string  `json:"filename"`
	Description *string `json:"description,omitempty"`
	Content     string  `json:"-"`
	Primary     bool    `json:"primary"`
}

// IngestOptions controls one orchestrator run.
type IngestOptions struct {
	// Limit caps how many filings are carried through the pipeline; zero
	// means no limit.
	Limit int `json:"limit"`
	// Reprocess forces filings whose accession number is already fully
	// persisted through the pipeline again (superseding prior rows).
	Reprocess bool `json:"reprocess"`
	// WriteRawXml persists the raw ownership XML alongside the document
	// metadata.
	WriteRawXml bool `json:"write_raw_xml"`
}

// FilingFailure records why one filing failed within a batch.
type FilingFailure struct {
	AccessionNumber AccessionNumber `json:"accession_number"`
	Error           string          `json:"error"`
}

// BatchResult summarizes one orchestrator run. Every filing handed to the
// run appears in exactly one of succeeded, failed, or skipped.
type BatchResult struct {
	RunID     string          `json:"run_id"`
	Processed int             `json:"processed"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	Failures  []FilingFailure `json:"failures,omitempty"`
}
