package models

import (
	"time"
)

// EntityType distinguishes issuers from reporting owners.
type EntityType string

const (
	EntityTypeIssuer EntityType = "issuer"
	EntityTypeOwner  EntityType = "reporting_owner"
)

// SecurityType classifies a security disclosed on a Form 4.
type SecurityType string

const (
	SecurityTypeEquity          SecurityType = "equity"
	SecurityTypeOption          SecurityType = "option"
	SecurityTypeConvertible     SecurityType = "convertible"
	SecurityTypeOtherDerivative SecurityType = "other_derivative"
)

// Timeliness marks whether a transaction was reported on time.
type Timeliness string

const (
	TimelinessOnTime Timeliness = "on-time"
	TimelinessLate   Timeliness = "late"
)

// Acquisition/disposition flags as they appear in the ownership XML.
const (
	FlagAcquired = "A"
	FlagDisposed = "D"
)

// OwnershipEntity is an issuer or a reporting owner. Shared by reference
// across filings: the same CIK always resolves to the same logical entity.
type OwnershipEntity struct {
	CIK           string     `json:"cik"`
	Name          string     `json:"name"`
	EntityType    EntityType `json:"entity_type"`
	TradingSymbol *string    `json:"trading_symbol,omitempty"`
}

// Security is one instrument of an issuer, keyed by (issuer CIK, title).
// Immutable once created except for CUSIP backfill.
type Security struct {
	IssuerCIK     string       `json:"issuer_cik"`
	Title         string       `json:"title"`
	SecurityType  SecurityType `json:"security_type"`
	StandardCusip *string      `json:"standard_cusip,omitempty"`
}

// DerivativeSecurity extends a non-equity Security 1:1, keyed by the same
// (issuer CIK, title) pair.
type DerivativeSecurity struct {
	SecurityTitle           string     `json:"security_title"`
	UnderlyingSecurityTitle string     `json:"underlying_security_title"`
	ConversionPrice         *float64   `json:"conversion_price,omitempty"`
	ExerciseDate            *time.Time `json:"exercise_date,omitempty"`
	ExpirationDate          *time.Time `json:"expiration_date,omitempty"`
}

// Form4Relationship links one issuer and one reporting owner for one
// filing. At least one role flag is true.
type Form4Relationship struct {
	IssuerCIK         string    `json:"issuer_cik"`
	OwnerCIK          string    `json:"owner_cik"`
	IsDirector        bool      `json:"is_director"`
	IsOfficer         bool      `json:"is_officer"`
	IsTenPercentOwner bool      `json:"is_ten_percent_owner"`
	IsOther           bool      `json:"is_other"`
	OfficerTitle      *string   `json:"officer_title,omitempty"`
	OtherText         *string   `json:"other_text,omitempty"`
	FilingDate        time.Time `json:"filing_date"`
}

// HasRole reports whether at least one role flag is set.
func (r *Form4Relationship) HasRole() bool {
	return r.IsDirector || r.IsOfficer || r.IsTenPercentOwner || r.IsOther
}

// Transaction is one reported non-derivative or derivative transaction.
// Securities are referenced by natural key (the owning extraction's issuer
// CIK plus Title), not by live object graph.
type Transaction struct {
	OwnerCIK        string      `json:"owner_cik"`
	SecurityTitle   string      `json:"security_title"`
	Derivative      bool        `json:"derivative"`
	TransactionCode string      `json:"transaction_code"`
	TransactionDate time.Time   `json:"transaction_date"`
	Shares          float64     `json:"shares"`
	PricePerShare   *float64    `json:"price_per_share,omitempty"`
	AcqDispFlag     string      `json:"acq_disp_flag"`
	DirectOwnership bool        `json:"direct_ownership"`
	Timeliness      *Timeliness `json:"timeliness,omitempty"`
}

// PositionImpact is the signed share delta this transaction applies to the
// relationship's position: +Shares when acquired, -Shares when disposed.
func (t *Transaction) PositionImpact() float64 {
	if t.AcqDispFlag == FlagDisposed {
		return -t.Shares
	}
	return t.Shares
}

// RelationshipPosition is a point-in-time snapshot of holdings for one
// (relationship, security) pair. Exactly one of the two origins holds:
// derived from a transaction (TransactionIndex set) or a standalone
// disclosed holding (PositionOnly true).
type RelationshipPosition struct {
	OwnerCIK      string    `json:"owner_cik"`
	SecurityTitle string    `json:"security_title"`
	Derivative    bool      `json:"derivative"`
	PositionDate  time.Time `json:"position_date"`
	Shares        float64   `json:"shares"`
	PositionOnly  bool      `json:"position_only"`
	// TransactionIndex points into FilingExtraction.Transactions for
	// transaction-derived positions; nil for position-only rows.
	TransactionIndex *int `json:"transaction_index,omitempty"`
}

// FilingExtraction is the full in-memory graph produced by one extraction
// pass; the unit handed to the persistence writer.
type FilingExtraction struct {
	AccessionNumber   AccessionNumber
	IssuerCIK         string // authoritative, from the XML issuer block
	FormType          string
	FilingDate        time.Time
	PeriodOfReport    *time.Time
	HasMultipleOwners bool

	Entities      []OwnershipEntity
	Securities    []Security
	Derivatives   []DerivativeSecurity
	Relationships []Form4Relationship
	Transactions  []Transaction
	Positions     []RelationshipPosition

	// Documents carries the embedded-document metadata from the split for
	// persistence; OwnershipDocName names the one the graph came from.
	Documents        []EmbeddedDocument
	OwnershipDocName string
	RawXML           string
}
