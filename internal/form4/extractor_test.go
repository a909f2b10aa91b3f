package form4

import (
	"context"
	"testing"
	"time"

	"github.com/dkeller/form4ingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalOwnershipXML = `<?xml version="1.0"?>
<ownershipDocument>
    <schemaVersion>X0306</schemaVersion>
    <documentType>4</documentType>
    <periodOfReport>2025-06-10</periodOfReport>
    <issuer>
        <issuerCik>0001234567</issuerCik>
        <issuerName>Acme Corp</issuerName>
        <issuerTradingSymbol>ACME</issuerTradingSymbol>
    </issuer>
    <reportingOwner>
        <reportingOwnerId>
            <rptOwnerCik>0009876543</rptOwnerCik>
            <rptOwnerName>Smith Jane</rptOwnerName>
        </reportingOwnerId>
        <reportingOwnerRelationship>
            <isDirector>1</isDirector>
            <isOfficer>0</isOfficer>
            <isTenPercentOwner>0</isTenPercentOwner>
            <isOther>0</isOther>
        </reportingOwnerRelationship>
    </reportingOwner>
    <nonDerivativeTable>
        <nonDerivativeTransaction>
            <securityTitle><value>Common Stock</value></securityTitle>
            <transactionDate><value>2025-06-10</value></transactionDate>
            <transactionCoding>
                <transactionFormType>4</transactionFormType>
                <transactionCode>S</transactionCode>
                <equitySwapInvolved>0</equitySwapInvolved>
            </transactionCoding>
            <transactionAmounts>
                <transactionShares><value>100</value></transactionShares>
                <transactionPricePerShare><value>12.34</value></transactionPricePerShare>
                <transactionAcquiredDisposedCode><value>D</value></transactionAcquiredDisposedCode>
            </transactionAmounts>
            <postTransactionAmounts>
                <sharesOwnedFollowingTransaction><value>900</value></sharesOwnedFollowingTransaction>
            </postTransactionAmounts>
            <ownershipNature>
                <directOrIndirectOwnership><value>D</value></directOrIndirectOwnership>
            </ownershipNature>
        </nonDerivativeTransaction>
    </nonDerivativeTable>
</ownershipDocument>`

func extractorRef(t *testing.T, cik string) models.FilingReference {
	t.Helper()
	accession, err := models.ParseAccession("0001234567-25-000001")
	require.NoError(t, err)
	return models.FilingReference{
		AccessionNumber: accession,
		CIK:             cik,
		FormType:        "4",
		FilingDate:      time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC),
	}
}

func xmlDoc(content string) []models.EmbeddedDocument {
	return []models.EmbeddedDocument{
		{Sequence: 1, Type: "4", Filename: "primary.xml", Content: content, Primary: true},
	}
}

// fakePriors returns a canned prior total for every key.
type fakePriors struct {
	total float64
	found bool
}

func (f fakePriors) PriorTotal(context.Context, string, string, string, bool, time.Time) (float64, bool, error) {
	return f.total, f.found, nil
}

func TestExtract_MinimalScenario(t *testing.T) {
	ex, err := NewExtractor(ZeroPriors{}).Extract(context.Background(), xmlDoc(minimalOwnershipXML), extractorRef(t, "0009876543"))
	require.NoError(t, err)

	assert.Equal(t, "0001234567", ex.IssuerCIK)
	assert.False(t, ex.HasMultipleOwners)

	require.Len(t, ex.Relationships, 1)
	rel := ex.Relationships[0]
	assert.Equal(t, "0001234567", rel.IssuerCIK)
	assert.Equal(t, "0009876543", rel.OwnerCIK)
	assert.True(t, rel.IsDirector)
	assert.False(t, rel.IsOfficer)

	require.Len(t, ex.Securities, 1)
	assert.Equal(t, "Common Stock", ex.Securities[0].Title)
	assert.Equal(t, models.SecurityTypeEquity, ex.Securities[0].SecurityType)

	require.Len(t, ex.Transactions, 1)
	txn := ex.Transactions[0]
	assert.Equal(t, "S", txn.TransactionCode)
	assert.Equal(t, 100.0, txn.Shares)
	assert.Equal(t, models.FlagDisposed, txn.AcqDispFlag)
	assert.True(t, txn.DirectOwnership)
	require.NotNil(t, txn.PricePerShare)
	assert.Equal(t, 12.34, *txn.PricePerShare)

	// Disposal of 100 against no prior position lands at -100.
	require.Len(t, ex.Positions, 1)
	pos := ex.Positions[0]
	assert.Equal(t, -100.0, pos.Shares)
	assert.False(t, pos.PositionOnly)
	require.NotNil(t, pos.TransactionIndex)
	assert.Equal(t, 0, *pos.TransactionIndex)
}

func TestExtract_IssuerCIKOverridesMetadata(t *testing.T) {
	// The filing reference carries the reporting owner's CIK; the issuer
	// block inside the XML is authoritative.
	ex, err := NewExtractor(ZeroPriors{}).Extract(context.Background(), xmlDoc(minimalOwnershipXML), extractorRef(t, "0009876543"))
	require.NoError(t, err)
	assert.Equal(t, "0001234567", ex.IssuerCIK)

	var issuer *models.OwnershipEntity
	for i := range ex.Entities {
		if ex.Entities[i].EntityType == models.EntityTypeIssuer {
			issuer = &ex.Entities[i]
		}
	}
	require.NotNil(t, issuer)
	assert.Equal(t, "0001234567", issuer.CIK)
	assert.Equal(t, "Acme Corp", issuer.Name)
	require.NotNil(t, issuer.TradingSymbol)
	assert.Equal(t, "ACME", *issuer.TradingSymbol)
}

func TestExtract_PriorPositionCarriesForward(t *testing.T) {
	acquisition := `<?xml version="1.0"?>
<ownershipDocument>
    <documentType>4</documentType>
    <periodOfReport>2025-06-10</periodOfReport>
    <issuer><issuerCik>1234567</issuerCik><issuerName>Acme Corp</issuerName></issuer>
    <reportingOwner>
        <reportingOwnerId><rptOwnerCik>9876543</rptOwnerCik><rptOwnerName>Smith Jane</rptOwnerName></reportingOwnerId>
        <reportingOwnerRelationship><isOfficer>1</isOfficer><officerTitle>CFO</officerTitle></reportingOwnerRelationship>
    </reportingOwner>
    <nonDerivativeTable>
        <nonDerivativeTransaction>
            <securityTitle><value>Common Stock</value></securityTitle>
            <transactionDate><value>2025-06-10</value></transactionDate>
            <transactionCoding><transactionCode>P</transactionCode></transactionCoding>
            <transactionAmounts>
                <transactionShares><value>100</value></transactionShares>
                <transactionAcquiredDisposedCode><value>A</value></transactionAcquiredDisposedCode>
            </transactionAmounts>
        </nonDerivativeTransaction>
    </nonDerivativeTable>
</ownershipDocument>`

	// Acquiring 100 against a prior position of 50 lands at 150.
	ex, err := NewExtractor(fakePriors{total: 50, found: true}).Extract(context.Background(), xmlDoc(acquisition), extractorRef(t, "1234567"))
	require.NoError(t, err)
	require.Len(t, ex.Positions, 1)
	assert.Equal(t, 150.0, ex.Positions[0].Shares)

	rel := ex.Relationships[0]
	require.NotNil(t, rel.OfficerTitle)
	assert.Equal(t, "CFO", *rel.OfficerTitle)
}

func TestExtract_RunningTotalWithinFiling(t *testing.T) {
	twoTxns := `<?xml version="1.0"?>
<ownershipDocument>
    <documentType>4</documentType>
    <issuer><issuerCik>1234567</issuerCik><issuerName>Acme Corp</issuerName></issuer>
    <reportingOwner>
        <reportingOwnerId><rptOwnerCik>9876543</rptOwnerCik><rptOwnerName>Smith Jane</rptOwnerName></reportingOwnerId>
        <reportingOwnerRelationship><isDirector>1</isDirector></reportingOwnerRelationship>
    </reportingOwner>
    <nonDerivativeTable>
        <nonDerivativeTransaction>
            <securityTitle><value>Common Stock</value></securityTitle>
            <transactionDate><value>2025-06-10</value></transactionDate>
            <transactionCoding><transactionCode>P</transactionCode></transactionCoding>
            <transactionAmounts>
                <transactionShares><value>200</value></transactionShares>
                <transactionAcquiredDisposedCode><value>A</value></transactionAcquiredDisposedCode>
            </transactionAmounts>
        </nonDerivativeTransaction>
        <nonDerivativeTransaction>
            <securityTitle><value>Common Stock</value></securityTitle>
            <transactionDate><value>2025-06-11</value></transactionDate>
            <transactionCoding><transactionCode>S</transactionCode></transactionCoding>
            <transactionAmounts>
                <transactionShares><value>50</value></transactionShares>
                <transactionAcquiredDisposedCode><value>D</value></transactionAcquiredDisposedCode>
            </transactionAmounts>
        </nonDerivativeTransaction>
    </nonDerivativeTable>
</ownershipDocument>`

	ex, err := NewExtractor(ZeroPriors{}).Extract(context.Background(), xmlDoc(twoTxns), extractorRef(t, "1234567"))
	require.NoError(t, err)
	require.Len(t, ex.Positions, 2)
	assert.Equal(t, 200.0, ex.Positions[0].Shares)
	assert.Equal(t, 150.0, ex.Positions[1].Shares)

	// Only one Security row for the repeated title.
	assert.Len(t, ex.Securities, 1)
}

func TestExtract_DerivativeTransaction(t *testing.T) {
	derivative := `<?xml version="1.0"?>
<ownershipDocument>
    <documentType>4</documentType>
    <issuer><issuerCik>1234567</issuerCik><issuerName>Acme Corp</issuerName></issuer>
    <reportingOwner>
        <reportingOwnerId><rptOwnerCik>9876543</rptOwnerCik><rptOwnerName>Smith Jane</rptOwnerName></reportingOwnerId>
        <reportingOwnerRelationship><isDirector>1</isDirector></reportingOwnerRelationship>
    </reportingOwner>
    <derivativeTable>
        <derivativeTransaction>
            <securityTitle><value>Stock Option (Right to Buy)</value></securityTitle>
            <conversionOrExercisePrice><value>10.00</value></conversionOrExercisePrice>
            <transactionDate><value>2025-06-10</value></transactionDate>
            <transactionCoding><transactionCode>A</transactionCode></transactionCoding>
            <transactionAmounts>
                <transactionShares><value>5000</value></transactionShares>
                <transactionAcquiredDisposedCode><value>A</value></transactionAcquiredDisposedCode>
            </transactionAmounts>
            <exerciseDate><value>2026-06-10</value></exerciseDate>
            <expirationDate><value>2035-06-10</value></expirationDate>
            <underlyingSecurity>
                <underlyingSecurityTitle><value>Common Stock</value></underlyingSecurityTitle>
                <underlyingSecurityShares><value>5000</value></underlyingSecurityShares>
            </underlyingSecurity>
        </derivativeTransaction>
    </derivativeTable>
</ownershipDocument>`

	ex, err := NewExtractor(ZeroPriors{}).Extract(context.Background(), xmlDoc(derivative), extractorRef(t, "1234567"))
	require.NoError(t, err)

	require.Len(t, ex.Securities, 1)
	assert.Equal(t, models.SecurityTypeOption, ex.Securities[0].SecurityType)

	require.Len(t, ex.Derivatives, 1)
	ds := ex.Derivatives[0]
	assert.Equal(t, "Stock Option (Right to Buy)", ds.SecurityTitle)
	assert.Equal(t, "Common Stock", ds.UnderlyingSecurityTitle)
	require.NotNil(t, ds.ConversionPrice)
	assert.Equal(t, 10.0, *ds.ConversionPrice)
	require.NotNil(t, ds.ExerciseDate)
	require.NotNil(t, ds.ExpirationDate)

	require.Len(t, ex.Transactions, 1)
	assert.True(t, ex.Transactions[0].Derivative)
	require.Len(t, ex.Positions, 1)
	assert.Equal(t, 5000.0, ex.Positions[0].Shares)
	assert.True(t, ex.Positions[0].Derivative)
}

func TestExtract_PositionOnlyHolding(t *testing.T) {
	holding := `<?xml version="1.0"?>
<ownershipDocument>
    <documentType>4</documentType>
    <periodOfReport>2025-06-10</periodOfReport>
    <issuer><issuerCik>1234567</issuerCik><issuerName>Acme Corp</issuerName></issuer>
    <reportingOwner>
        <reportingOwnerId><rptOwnerCik>9876543</rptOwnerCik><rptOwnerName>Smith Jane</rptOwnerName></reportingOwnerId>
        <reportingOwnerRelationship><isTenPercentOwner>1</isTenPercentOwner></reportingOwnerRelationship>
    </reportingOwner>
    <nonDerivativeTable>
        <nonDerivativeHolding>
            <securityTitle><value>Common Stock</value></securityTitle>
            <postTransactionAmounts>
                <sharesOwnedFollowingTransaction><value>25000</value></sharesOwnedFollowingTransaction>
            </postTransactionAmounts>
        </nonDerivativeHolding>
    </nonDerivativeTable>
</ownershipDocument>`

	ex, err := NewExtractor(ZeroPriors{}).Extract(context.Background(), xmlDoc(holding), extractorRef(t, "1234567"))
	require.NoError(t, err)

	assert.Empty(t, ex.Transactions)
	require.Len(t, ex.Positions, 1)
	pos := ex.Positions[0]
	assert.True(t, pos.PositionOnly)
	assert.Nil(t, pos.TransactionIndex)
	assert.Equal(t, 25000.0, pos.Shares)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), pos.PositionDate)
}

func TestExtract_MultipleOwners(t *testing.T) {
	multi := `<?xml version="1.0"?>
<ownershipDocument>
    <documentType>4</documentType>
    <issuer><issuerCik>1234567</issuerCik><issuerName>Acme Corp</issuerName></issuer>
    <reportingOwner>
        <reportingOwnerId><rptOwnerCik>9876543</rptOwnerCik><rptOwnerName>Smith Jane</rptOwnerName></reportingOwnerId>
        <reportingOwnerRelationship><isDirector>1</isDirector></reportingOwnerRelationship>
    </reportingOwner>
    <reportingOwner>
        <reportingOwnerId><rptOwnerCik>5555555</rptOwnerCik><rptOwnerName>Smith Family Trust</rptOwnerName></reportingOwnerId>
        <reportingOwnerRelationship><isOther>1</isOther><otherText>Trust</otherText></reportingOwnerRelationship>
    </reportingOwner>
    <nonDerivativeTable>
        <nonDerivativeTransaction>
            <securityTitle><value>Common Stock</value></securityTitle>
            <transactionDate><value>2025-06-10</value></transactionDate>
            <transactionCoding><transactionCode>P</transactionCode></transactionCoding>
            <transactionAmounts>
                <transactionShares><value>100</value></transactionShares>
                <transactionAcquiredDisposedCode><value>A</value></transactionAcquiredDisposedCode>
            </transactionAmounts>
        </nonDerivativeTransaction>
    </nonDerivativeTable>
</ownershipDocument>`

	ex, err := NewExtractor(ZeroPriors{}).Extract(context.Background(), xmlDoc(multi), extractorRef(t, "1234567"))
	require.NoError(t, err)

	assert.True(t, ex.HasMultipleOwners)
	require.Len(t, ex.Relationships, 2)

	// Transactions attach to the first owner's relationship only; never
	// silently duplicated across owners.
	require.Len(t, ex.Transactions, 1)
	assert.Equal(t, "0009876543", ex.Transactions[0].OwnerCIK)
}

func TestExtract_NoOwnershipDocument(t *testing.T) {
	docs := []models.EmbeddedDocument{
		{Sequence: 1, Type: "4", Filename: "form.htm", Content: "<html><body>rendered form</body></html>", Primary: true},
	}
	_, err := NewExtractor(ZeroPriors{}).Extract(context.Background(), docs, extractorRef(t, "1234567"))

	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Contains(t, exErr.Reason, "no ownership XML")
}

func TestExtract_MalformedXML(t *testing.T) {
	docs := xmlDoc("<?xml version=\"1.0\"?>\n<ownershipDocument><issuer></ownershipDocument>")
	_, err := NewExtractor(ZeroPriors{}).Extract(context.Background(), docs, extractorRef(t, "1234567"))

	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
}

func TestDeriveSecurityType(t *testing.T) {
	assert.Equal(t, models.SecurityTypeOption, DeriveSecurityType("Stock Option (Right to Buy)"))
	assert.Equal(t, models.SecurityTypeConvertible, DeriveSecurityType("Convertible Preferred Stock"))
	assert.Equal(t, models.SecurityTypeOtherDerivative, DeriveSecurityType("Restricted Stock Unit"))
}
