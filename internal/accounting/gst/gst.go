// Package gst computes Indian GST line amounts and the CGST/SGST/IGST split.
package gst

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// Treatment selects how tax is split across components.
type Treatment string

const (
	// TreatmentIntraState splits tax evenly between CGST and SGST.
	TreatmentIntraState Treatment = "cgst_sgst"
	// TreatmentInterState assigns all tax to IGST.
	TreatmentInterState Treatment = "igst"
)

var hundred = decimal.NewFromInt(100)

// Classify infers the treatment from the tax components of an invoice.
func Classify(cgst, sgst, igst decimal.Decimal) Treatment {
	if igst.IsPositive() && cgst.Add(sgst).IsZero() {
		return TreatmentInterState
	}
	return TreatmentIntraState
}

// Item is a taxable line as supplied by the caller. TaxRate is a percentage.
type Item struct {
	Name     string
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	TaxRate  decimal.Decimal
}

// Validate checks quantity, rate and tax rate bounds.
func (it Item) Validate() error {
	switch {
	case !it.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be positive", shared.ErrInvalidInput)
	case !it.Rate.IsPositive():
		return fmt.Errorf("%w: rate must be positive", shared.ErrInvalidInput)
	case it.TaxRate.IsNegative() || it.TaxRate.GreaterThan(hundred):
		return fmt.Errorf("%w: tax rate must be between 0 and 100", shared.ErrInvalidInput)
	}
	return nil
}

// Line is an item with its computed amounts.
type Line struct {
	Item
	Amount decimal.Decimal
	Tax    decimal.Decimal
	CGST   decimal.Decimal
	SGST   decimal.Decimal
	IGST   decimal.Decimal
}

// Total returns amount plus tax.
func (l Line) Total() decimal.Decimal {
	return l.Amount.Add(l.Tax)
}

// ComputeLine prices one item. Amount and tax are each rounded to paise;
// under intra-state treatment any odd paisa goes to SGST.
func ComputeLine(item Item, treatment Treatment) Line {
	line := Line{Item: item}
	line.Amount = shared.Monetary(item.Quantity, item.Rate)
	line.Tax = shared.Round2(line.Amount.Mul(item.TaxRate).Div(hundred))
	if treatment == TreatmentInterState {
		line.IGST = line.Tax
		return line
	}
	line.CGST = shared.Round2(line.Tax.Div(decimal.NewFromInt(2)))
	line.SGST = line.Tax.Sub(line.CGST)
	return line
}

// Summary aggregates computed lines.
type Summary struct {
	Treatment Treatment
	Lines     []Line
	Subtotal  decimal.Decimal
	CGST      decimal.Decimal
	SGST      decimal.Decimal
	IGST      decimal.Decimal
	GST       decimal.Decimal
	Total     decimal.Decimal
}

// Summarize computes every item under treatment and totals them.
func Summarize(items []Item, treatment Treatment) Summary {
	sum := Summary{Treatment: treatment, Lines: make([]Line, 0, len(items))}
	for _, item := range items {
		line := ComputeLine(item, treatment)
		sum.Lines = append(sum.Lines, line)
		sum.Subtotal = sum.Subtotal.Add(line.Amount)
		sum.CGST = sum.CGST.Add(line.CGST)
		sum.SGST = sum.SGST.Add(line.SGST)
		sum.IGST = sum.IGST.Add(line.IGST)
	}
	sum.GST = sum.CGST.Add(sum.SGST).Add(sum.IGST)
	sum.Total = sum.Subtotal.Add(sum.GST)
	return sum
}
