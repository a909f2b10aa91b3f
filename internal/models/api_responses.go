package models

import "time"

// ErrorResponse is the standard error body for API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// IngestFilingRequest is one filing reference in an ingest request.
type IngestFilingRequest struct {
	AccessionNumber string `json:"accession_number" binding:"required"`
	CIK             string `json:"cik" binding:"required"`
	FormType        string `json:"form_type"`
	FilingDate      string `json:"filing_date"` // YYYY-MM-DD
}

// IngestRequest is the body of POST /admin/ingest.
type IngestRequest struct {
	Filings     []IngestFilingRequest `json:"filings" binding:"required"`
	Limit       int                   `json:"limit"`
	Reprocess   bool                  `json:"reprocess"`
	WriteRawXml bool                  `json:"write_raw_xml"`
}

// FilingResponse is the persisted graph for one filing as returned by
// GET /filings/:accession.
type FilingResponse struct {
	AccessionNumber string                 `json:"accession_number"`
	CIK             string                 `json:"cik"`
	FormType        string                 `json:"form_type"`
	FilingDate      time.Time              `json:"filing_date"`
	Status          FilingStatus           `json:"status"`
	FailureReason   *string                `json:"failure_reason,omitempty"`
	Relationships   []RelationshipResponse `json:"relationships"`
}

// RelationshipResponse is one issuer/owner relationship with its
// transactions and positions.
type RelationshipResponse struct {
	IssuerCIK         string             `json:"issuer_cik"`
	IssuerName        string             `json:"issuer_name"`
	OwnerCIK          string             `json:"owner_cik"`
	OwnerName         string             `json:"owner_name"`
	IsDirector        bool               `json:"is_director"`
	IsOfficer         bool               `json:"is_officer"`
	IsTenPercentOwner bool               `json:"is_ten_percent_owner"`
	IsOther           bool               `json:"is_other"`
	OfficerTitle      *string            `json:"officer_title,omitempty"`
	Transactions      []TransactionRow   `json:"transactions"`
	Positions         []PositionRow      `json:"positions"`
}

// TransactionRow is one persisted transaction.
type TransactionRow struct {
	ID              int64     `json:"id"`
	SecurityTitle   string    `json:"security_title"`
	Derivative      bool      `json:"derivative"`
	TransactionCode string    `json:"transaction_code"`
	TransactionDate time.Time `json:"transaction_date"`
	Shares          float64   `json:"shares"`
	PricePerShare   *float64  `json:"price_per_share,omitempty"`
	AcqDispFlag     string    `json:"acq_disp_flag"`
	DirectOwnership bool      `json:"direct_ownership"`
}

// PositionRow is one persisted position snapshot.
type PositionRow struct {
	ID            int64     `json:"id"`
	SecurityTitle string    `json:"security_title"`
	Derivative    bool      `json:"derivative"`
	PositionDate  time.Time `json:"position_date"`
	Shares        float64   `json:"shares"`
	PositionOnly  bool      `json:"position_only"`
}
