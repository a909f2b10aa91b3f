package form4

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

// XML mapping for the SEC ownershipDocument schema. Only the elements the
// extractor consumes are modeled; unknown elements are skipped by
// encoding/xml.

type ownershipDocument struct {
	XMLName         xml.Name              `xml:"ownershipDocument"`
	SchemaVersion   string                `xml:"schemaVersion"`
	DocumentType    string                `xml:"documentType"`
	PeriodOfReport  string                `xml:"periodOfReport"`
	Issuer          issuerBlock           `xml:"issuer"`
	ReportingOwners []reportingOwnerBlock `xml:"reportingOwner"`
	NonDerivative   *nonDerivativeTable   `xml:"nonDerivativeTable"`
	Derivative      *derivativeTable      `xml:"derivativeTable"`
}

type issuerBlock struct {
	CIK           string `xml:"issuerCik"`
	Name          string `xml:"issuerName"`
	TradingSymbol string `xml:"issuerTradingSymbol"`
}

type reportingOwnerBlock struct {
	ID           reportingOwnerID           `xml:"reportingOwnerId"`
	Relationship reportingOwnerRelationship `xml:"reportingOwnerRelationship"`
}

type reportingOwnerID struct {
	CIK  string `xml:"rptOwnerCik"`
	Name string `xml:"rptOwnerName"`
}

type reportingOwnerRelationship struct {
	IsDirector        string `xml:"isDirector"`
	IsOfficer         string `xml:"isOfficer"`
	IsTenPercentOwner string `xml:"isTenPercentOwner"`
	IsOther           string `xml:"isOther"`
	OfficerTitle      string `xml:"officerTitle"`
	OtherText         string `xml:"otherText"`
}

type nonDerivativeTable struct {
	Transactions []transactionEntry `xml:"nonDerivativeTransaction"`
	Holdings     []holdingEntry     `xml:"nonDerivativeHolding"`
}

type derivativeTable struct {
	Transactions []transactionEntry `xml:"derivativeTransaction"`
	Holdings     []holdingEntry     `xml:"derivativeHolding"`
}

type transactionEntry struct {
	SecurityTitle        valueElem           `xml:"securityTitle"`
	TransactionDate      valueElem           `xml:"transactionDate"`
	Coding               transactionCoding   `xml:"transactionCoding"`
	Timeliness           valueElem           `xml:"transactionTimeliness"`
	Amounts              transactionAmounts  `xml:"transactionAmounts"`
	PostAmounts          postAmounts         `xml:"postTransactionAmounts"`
	Ownership            ownershipNature     `xml:"ownershipNature"`
	ConversionPrice      valueElem           `xml:"conversionOrExercisePrice"`
	ExerciseDate         valueElem           `xml:"exerciseDate"`
	ExpirationDate       valueElem           `xml:"expirationDate"`
	UnderlyingSecurity   *underlyingSecurity `xml:"underlyingSecurity"`
}

type holdingEntry struct {
	SecurityTitle      valueElem           `xml:"securityTitle"`
	PostAmounts        postAmounts         `xml:"postTransactionAmounts"`
	Ownership          ownershipNature     `xml:"ownershipNature"`
	ConversionPrice    valueElem           `xml:"conversionOrExercisePrice"`
	ExerciseDate       valueElem           `xml:"exerciseDate"`
	ExpirationDate     valueElem           `xml:"expirationDate"`
	UnderlyingSecurity *underlyingSecurity `xml:"underlyingSecurity"`
}

type transactionCoding struct {
	FormType           string `xml:"transactionFormType"`
	Code               string `xml:"transactionCode"`
	EquitySwapInvolved string `xml:"equitySwapInvolved"`
}

type transactionAmounts struct {
	Shares        valueElem `xml:"transactionShares"`
	PricePerShare valueElem `xml:"transactionPricePerShare"`
	AcqDispCode   valueElem `xml:"transactionAcquiredDisposedCode"`
}

type postAmounts struct {
	SharesOwned valueElem `xml:"sharesOwnedFollowingTransaction"`
}

type ownershipNature struct {
	DirectOrIndirect valueElem `xml:"directOrIndirectOwnership"`
}

type underlyingSecurity struct {
	Title  valueElem `xml:"underlyingSecurityTitle"`
	Shares valueElem `xml:"underlyingSecurityShares"`
}

// valueElem models the <element><value>…</value></element> convention the
// ownership schema uses for almost every scalar.
type valueElem struct {
	Value string `xml:"value"`
}

func (v valueElem) text() string {
	return strings.TrimSpace(v.Value)
}

func (v valueElem) float() (float64, bool) {
	s := v.text()
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (v valueElem) date() (time.Time, bool) {
	s := v.text()
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseBool handles the mix of representations the ownership schema allows
// for its boolean elements ("1"/"0", "true"/"false", occasionally "Y").
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "y", "yes":
		return true
	}
	return false
}
