package integration

import (
	"time"

	"github.com/odyssey-erp/pharmstock/internal/receiving"
	"github.com/odyssey-erp/pharmstock/internal/sales"
)

// Event types carried in the envelope and the event-type header.
const (
	EventSaleCommitted    = "sale.committed"
	EventDocumentReceived = "purchase.received"
)

// Envelope wraps every published payload.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type allocationMessage struct {
	LotID       int64  `json:"lot_id,omitempty"`
	BatchNumber string `json:"batch_number,omitempty"`
	Source      string `json:"source"`
	Quantity    int    `json:"quantity"`
}

type saleLineMessage struct {
	ProductCode string              `json:"product_code"`
	Quantity    int                 `json:"quantity"`
	LineTotal   string              `json:"line_total"`
	Allocations []allocationMessage `json:"allocations"`
}

type saleMessage struct {
	SaleID  string            `json:"sale_id"`
	Channel string            `json:"channel"`
	Total   string            `json:"total"`
	Lines   []saleLineMessage `json:"lines"`
}

type receivedLineMessage struct {
	ProductCode string `json:"product_code"`
	LotID       int64  `json:"lot_id,omitempty"`
	BatchNumber string `json:"batch_number"`
	ExpiresAt   string `json:"expires_at"`
	Quantity    int    `json:"quantity"`
	Status      string `json:"status"`
}

type documentMessage struct {
	DocumentID    string                `json:"document_id"`
	InvoiceNumber string                `json:"invoice_number"`
	Supplier      string                `json:"supplier,omitempty"`
	Payable       string                `json:"payable"`
	Lines         []receivedLineMessage `json:"lines"`
}

func saleEnvelope(evt sales.SaleCommittedEvent) Envelope {
	msg := saleMessage{
		SaleID:  evt.SaleID.String(),
		Channel: string(evt.Channel),
		Total:   evt.Total.StringFixed(2),
		Lines:   make([]saleLineMessage, 0, len(evt.Lines)),
	}
	for _, l := range evt.Lines {
		line := saleLineMessage{ProductCode: l.ProductCode, Quantity: l.Quantity, LineTotal: l.LineTotal.StringFixed(2)}
		for _, a := range l.Allocations {
			line.Allocations = append(line.Allocations, allocationMessage{
				LotID:       a.LotID,
				BatchNumber: a.BatchNumber,
				Source:      string(a.Source),
				Quantity:    a.Quantity,
			})
		}
		msg.Lines = append(msg.Lines, line)
	}
	return Envelope{Type: EventSaleCommitted, OccurredAt: evt.OccurredAt, Data: msg}
}

func documentEnvelope(evt receiving.DocumentReceivedEvent) Envelope {
	msg := documentMessage{
		DocumentID:    evt.DocumentID.String(),
		InvoiceNumber: evt.InvoiceNumber,
		Supplier:      evt.Supplier,
		Payable:       evt.Payable.StringFixed(2),
		Lines:         make([]receivedLineMessage, 0, len(evt.Lines)),
	}
	for _, l := range evt.Lines {
		msg.Lines = append(msg.Lines, receivedLineMessage{
			ProductCode: l.ProductCode,
			LotID:       l.LotID,
			BatchNumber: l.BatchNumber,
			ExpiresAt:   l.ExpiresAt.Format(time.DateOnly),
			Quantity:    l.Quantity,
			Status:      string(l.Status),
		})
	}
	return Envelope{Type: EventDocumentReceived, OccurredAt: evt.OccurredAt, Data: msg}
}
