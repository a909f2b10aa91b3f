package form4

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/dkeller/form4ingest/internal/models"
	log "github.com/sirupsen/logrus"
)

// ExtractionError is the normal, expected failure of an extraction pass:
// no ownership XML in the submission, or XML present but not matching the
// ownership schema. It is fatal for that filing only, never for the batch.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "extraction failed: " + e.Reason
}

// PriorPositions supplies the most recent persisted position total for a
// (relationship, security) pair so running totals continue across filings.
type PriorPositions interface {
	PriorTotal(ctx context.Context, ownerCIK, issuerCIK, securityTitle string, derivative bool, before time.Time) (float64, bool, error)
}

// ZeroPriors is a PriorPositions that knows nothing; every running total
// starts at zero.
type ZeroPriors struct{}

// PriorTotal always reports no prior position.
func (ZeroPriors) PriorTotal(context.Context, string, string, string, bool, time.Time) (float64, bool, error) {
	return 0, false, nil
}

// Extractor turns the embedded ownership XML of a submission into a typed
// FilingExtraction graph.
type Extractor struct {
	priors PriorPositions
}

// NewExtractor creates an Extractor. priors may be ZeroPriors{} when no
// persisted history is available.
func NewExtractor(priors PriorPositions) *Extractor {
	if priors == nil {
		priors = ZeroPriors{}
	}
	return &Extractor{priors: priors}
}

// Extract locates the ownership XML among the embedded documents and
// builds the full extraction graph. The ownership XML is frequently a
// secondary embedded document, so every document is sniffed, not just the
// primary. The issuer CIK parsed here is authoritative and overrides the
// filing reference's CIK downstream.
func (e *Extractor) Extract(ctx context.Context, docs []models.EmbeddedDocument, ref models.FilingReference) (*models.FilingExtraction, error) {
	doc, raw, ok := findOwnershipDocument(docs)
	if !ok {
		return nil, &ExtractionError{Reason: "no ownership XML document in submission"}
	}

	var parsed ownershipDocument
	if err := xml.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, &ExtractionError{Reason: fmt.Sprintf("ownership XML did not parse: %v", err)}
	}
	if strings.TrimSpace(parsed.Issuer.CIK) == "" {
		return nil, &ExtractionError{Reason: "ownership XML has no issuer CIK"}
	}

	issuerCIK := models.PadCIK(parsed.Issuer.CIK)
	ex := &models.FilingExtraction{
		AccessionNumber:  ref.AccessionNumber,
		IssuerCIK:        issuerCIK,
		FormType:         ref.FormType,
		FilingDate:       ref.FilingDate,
		Documents:        docs,
		OwnershipDocName: doc.Filename,
		RawXML:           raw,
	}
	if t, ok := (valueElem{Value: parsed.PeriodOfReport}).date(); ok {
		ex.PeriodOfReport = &t
	}

	symbol := strings.TrimSpace(parsed.Issuer.TradingSymbol)
	issuer := models.OwnershipEntity{
		CIK:        issuerCIK,
		Name:       strings.TrimSpace(parsed.Issuer.Name),
		EntityType: models.EntityTypeIssuer,
	}
	if symbol != "" {
		issuer.TradingSymbol = &symbol
	}
	ex.Entities = append(ex.Entities, issuer)

	if len(parsed.ReportingOwners) == 0 {
		return nil, &ExtractionError{Reason: "ownership XML has no reporting owners"}
	}
	ex.HasMultipleOwners = len(parsed.ReportingOwners) > 1

	for _, ro := range parsed.ReportingOwners {
		ownerCIK := models.PadCIK(ro.ID.CIK)
		if ownerCIK == "" {
			return nil, &ExtractionError{Reason: "reporting owner block has no CIK"}
		}
		ex.Entities = append(ex.Entities, models.OwnershipEntity{
			CIK:        ownerCIK,
			Name:       strings.TrimSpace(ro.ID.Name),
			EntityType: models.EntityTypeOwner,
		})

		rel := models.Form4Relationship{
			IssuerCIK:         issuerCIK,
			OwnerCIK:          ownerCIK,
			IsDirector:        parseBool(ro.Relationship.IsDirector),
			IsOfficer:         parseBool(ro.Relationship.IsOfficer),
			IsTenPercentOwner: parseBool(ro.Relationship.IsTenPercentOwner),
			IsOther:           parseBool(ro.Relationship.IsOther),
			FilingDate:        ref.FilingDate,
		}
		if t := strings.TrimSpace(ro.Relationship.OfficerTitle); t != "" {
			rel.OfficerTitle = &t
		}
		if t := strings.TrimSpace(ro.Relationship.OtherText); t != "" {
			rel.OtherText = &t
		}
		if !rel.HasRole() {
			// Schema requires at least one role; a filing without one is
			// still ingestible, so record it as "other".
			log.Warnf("reporting owner %s in %s declares no role; flagging as other", ownerCIK, ref.AccessionNumber)
			rel.IsOther = true
		}
		ex.Relationships = append(ex.Relationships, rel)
	}

	// Transactions and holdings are not attributed to individual owners in
	// the ownership schema; they attach to the first reporting owner's
	// relationship and are never duplicated across owners.
	ownerCIK := ex.Relationships[0].OwnerCIK

	b := &graphBuilder{
		ctx:       ctx,
		extractor: e,
		ex:        ex,
		ownerCIK:  ownerCIK,
		ledger:    make(map[ledgerKey]float64),
		seeded:    make(map[ledgerKey]bool),
	}

	if parsed.NonDerivative != nil {
		for _, t := range parsed.NonDerivative.Transactions {
			if err := b.addTransaction(t, false); err != nil {
				return nil, err
			}
		}
		for _, h := range parsed.NonDerivative.Holdings {
			if err := b.addHolding(h, false); err != nil {
				return nil, err
			}
		}
	}
	if parsed.Derivative != nil {
		for _, t := range parsed.Derivative.Transactions {
			if err := b.addTransaction(t, true); err != nil {
				return nil, err
			}
		}
		for _, h := range parsed.Derivative.Holdings {
			if err := b.addHolding(h, true); err != nil {
				return nil, err
			}
		}
	}

	return ex, nil
}

// findOwnershipDocument sniffs each embedded document for an XML payload
// whose root element is ownershipDocument.
func findOwnershipDocument(docs []models.EmbeddedDocument) (models.EmbeddedDocument, string, bool) {
	for _, d := range docs {
		content := strings.TrimSpace(d.Content)
		// Some wrappers carry an <XML>…</XML> shell around the payload.
		if i := strings.Index(content, "<XML>"); i >= 0 {
			content = content[i+len("<XML>"):]
			if j := strings.LastIndex(content, "</XML>"); j >= 0 {
				content = content[:j]
			}
			content = strings.TrimSpace(content)
		}
		if !strings.HasPrefix(content, "<?xml") && !strings.HasPrefix(content, "<ownershipDocument") {
			continue
		}
		if strings.Contains(content, "<ownershipDocument") {
			return d, content, true
		}
	}
	return models.EmbeddedDocument{}, "", false
}

type ledgerKey struct {
	ownerCIK   string
	title      string
	derivative bool
}

// graphBuilder accumulates securities, transactions and positions while
// maintaining the running position total per (relationship, security).
type graphBuilder struct {
	ctx       context.Context
	extractor *Extractor
	ex        *models.FilingExtraction
	ownerCIK  string
	ledger    map[ledgerKey]float64
	seeded    map[ledgerKey]bool
}

func (b *graphBuilder) addTransaction(t transactionEntry, derivative bool) error {
	title := t.SecurityTitle.text()
	if title == "" {
		return &ExtractionError{Reason: "transaction entry has no security title"}
	}
	date, ok := t.TransactionDate.date()
	if !ok {
		return &ExtractionError{Reason: fmt.Sprintf("transaction for %q has no parseable date", title)}
	}
	shares, ok := t.Amounts.Shares.float()
	if !ok {
		return &ExtractionError{Reason: fmt.Sprintf("transaction for %q has no parseable share amount", title)}
	}
	flag := strings.ToUpper(t.Amounts.AcqDispCode.text())
	if flag != models.FlagAcquired && flag != models.FlagDisposed {
		return &ExtractionError{Reason: fmt.Sprintf("transaction for %q has flag %q, want A or D", title, flag)}
	}

	b.ensureSecurity(title, derivative, t.ConversionPrice, t.ExerciseDate, t.ExpirationDate, t.UnderlyingSecurity)

	txn := models.Transaction{
		OwnerCIK:        b.ownerCIK,
		SecurityTitle:   title,
		Derivative:      derivative,
		TransactionCode: t.Coding.Code,
		TransactionDate: date,
		Shares:          shares,
		AcqDispFlag:     flag,
		DirectOwnership: strings.EqualFold(t.Ownership.DirectOrIndirect.text(), "D"),
	}
	if p, ok := t.Amounts.PricePerShare.float(); ok {
		txn.PricePerShare = &p
	}
	switch strings.ToUpper(t.Timeliness.text()) {
	case "L":
		late := models.TimelinessLate
		txn.Timeliness = &late
	case "E", "O", "":
		// "E" (early) and absent both count as on time; absent stays nil.
		if t.Timeliness.text() != "" {
			onTime := models.TimelinessOnTime
			txn.Timeliness = &onTime
		}
	}

	b.ex.Transactions = append(b.ex.Transactions, txn)
	idx := len(b.ex.Transactions) - 1

	total, err := b.runningTotal(title, derivative, date)
	if err != nil {
		return err
	}
	total += txn.PositionImpact()
	b.ledger[ledgerKey{b.ownerCIK, title, derivative}] = total

	b.ex.Positions = append(b.ex.Positions, models.RelationshipPosition{
		OwnerCIK:         b.ownerCIK,
		SecurityTitle:    title,
		Derivative:       derivative,
		PositionDate:     date,
		Shares:           total,
		TransactionIndex: &idx,
	})
	return nil
}

func (b *graphBuilder) addHolding(h holdingEntry, derivative bool) error {
	title := h.SecurityTitle.text()
	if title == "" {
		return &ExtractionError{Reason: "holding entry has no security title"}
	}
	shares, ok := h.PostAmounts.SharesOwned.float()
	if !ok {
		return &ExtractionError{Reason: fmt.Sprintf("holding for %q has no parseable share amount", title)}
	}

	b.ensureSecurity(title, derivative, h.ConversionPrice, h.ExerciseDate, h.ExpirationDate, h.UnderlyingSecurity)

	// Standalone holdings carry no date of their own; the period of report
	// (or filing date) locates them in time.
	date := b.ex.FilingDate
	if b.ex.PeriodOfReport != nil {
		date = *b.ex.PeriodOfReport
	}

	key := ledgerKey{b.ownerCIK, title, derivative}
	b.ledger[key] = shares
	b.seeded[key] = true

	b.ex.Positions = append(b.ex.Positions, models.RelationshipPosition{
		OwnerCIK:      b.ownerCIK,
		SecurityTitle: title,
		Derivative:    derivative,
		PositionDate:  date,
		Shares:        shares,
		PositionOnly:  true,
	})
	return nil
}

// runningTotal returns the position total before applying the next impact,
// seeding it from persisted history on first touch of a key.
func (b *graphBuilder) runningTotal(title string, derivative bool, asOf time.Time) (float64, error) {
	key := ledgerKey{b.ownerCIK, title, derivative}
	if b.seeded[key] {
		return b.ledger[key], nil
	}
	b.seeded[key] = true
	prior, found, err := b.extractor.priors.PriorTotal(b.ctx, b.ownerCIK, b.ex.IssuerCIK, title, derivative, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to look up prior position for %q: %w", title, err)
	}
	if found {
		b.ledger[key] = prior
	}
	return b.ledger[key], nil
}

// ensureSecurity registers the security (and its derivative extension)
// once per (issuer, title) within this pass.
func (b *graphBuilder) ensureSecurity(title string, derivative bool, convPrice, exDate, expDate valueElem, underlying *underlyingSecurity) {
	for _, s := range b.ex.Securities {
		if s.Title == title {
			return
		}
	}

	secType := models.SecurityTypeEquity
	if derivative {
		secType = DeriveSecurityType(title)
	}
	b.ex.Securities = append(b.ex.Securities, models.Security{
		IssuerCIK:    b.ex.IssuerCIK,
		Title:        title,
		SecurityType: secType,
	})

	if !derivative {
		return
	}
	ds := models.DerivativeSecurity{SecurityTitle: title}
	if underlying != nil {
		ds.UnderlyingSecurityTitle = underlying.Title.text()
	}
	if p, ok := convPrice.float(); ok {
		ds.ConversionPrice = &p
	}
	if d, ok := exDate.date(); ok {
		ds.ExerciseDate = &d
	}
	if d, ok := expDate.date(); ok {
		ds.ExpirationDate = &d
	}
	b.ex.Derivatives = append(b.ex.Derivatives, ds)
}

// DeriveSecurityType maps a derivative instrument title to its subtype.
func DeriveSecurityType(title string) models.SecurityType {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "option"):
		return models.SecurityTypeOption
	case strings.Contains(t, "convertible"):
		return models.SecurityTypeConvertible
	default:
		return models.SecurityTypeOtherDerivative
	}
}
