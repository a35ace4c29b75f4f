// Package pdf renders printable documents with maroto.
package pdf

import (
	"context"
	"io"
)

type InvoiceItem struct {
	Description string
	Qty         int64
	UnitPrice   string
	Amount      string
}

type InvoiceData struct {
	InvoiceNumber string
	IssueDate     string
	DueDate       string
	Status        string

	BillToName  string
	BillToEmail string

	Items []InvoiceItem

	Subtotal string
	Tax      string
	Discount string
	Total    string
}

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
}
