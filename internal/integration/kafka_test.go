package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/receiving"
	"github.com/odyssey-erp/pharmstock/internal/sales"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	return headerCarrier{msg: &msg}.Get(key)
}

func TestPublishSaleCommitted(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, nil)
	id := uuid.New()
	evt := sales.SaleCommittedEvent{
		SaleID:  id,
		Channel: sales.ChannelOTC,
		Total:   decimal.RequireFromString("42.5"),
		Lines: []sales.Line{{
			Position:    1,
			ProductCode: "AMOX",
			Quantity:    8,
			LineTotal:   decimal.RequireFromString("42.5"),
			Allocations: []sales.Allocation{
				{LotID: 1, BatchNumber: "B-1", Source: inventory.SourceLotBacked, Quantity: 5},
				{LotID: 2, BatchNumber: "B-2", Source: inventory.SourceLotBacked, Quantity: 3},
			},
		}},
		OccurredAt: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.HandleSaleCommitted(context.Background(), evt))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, id.String(), string(msg.Key))
	assert.Equal(t, EventSaleCommitted, header(msg, "event-type"))

	var body struct {
		Type string `json:"type"`
		Data struct {
			Total string `json:"total"`
			Lines []struct {
				Allocations []struct {
					LotID    int64 `json:"lot_id"`
					Quantity int   `json:"quantity"`
				} `json:"allocations"`
			} `json:"lines"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, EventSaleCommitted, body.Type)
	assert.Equal(t, "42.50", body.Data.Total)
	require.Len(t, body.Data.Lines[0].Allocations, 2)
	assert.Equal(t, 3, body.Data.Lines[0].Allocations[1].Quantity)
}

func TestPublishDocumentReceived(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, nil)
	evt := receiving.DocumentReceivedEvent{
		DocumentID:    uuid.New(),
		InvoiceNumber: "INV-1",
		Payable:       decimal.NewFromInt(100),
		Lines: []receiving.Line{{
			ProductCode: "AMOX",
			BatchNumber: "B-1",
			ExpiresAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Quantity:    10,
			LotID:       7,
			Status:      receiving.LineReceived,
		}},
	}

	require.NoError(t, p.HandleDocumentReceived(context.Background(), evt))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, EventDocumentReceived, header(w.msgs[0], "event-type"))
	assert.Contains(t, string(w.msgs[0].Value), `"expires_at":"2026-01-01"`)
}

func TestPublishInjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "sale")
	defer span.End()

	w := &fakeWriter{}
	p := NewPublisher(w, nil)
	require.NoError(t, p.HandleSaleCommitted(ctx, sales.SaleCommittedEvent{SaleID: uuid.New()}))
	require.Len(t, w.msgs, 1)
	assert.Contains(t, header(w.msgs[0], "traceparent"), span.SpanContext().TraceID().String())
}

func TestPublishWrapsWriterErrors(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := NewPublisher(&fakeWriter{err: boom}, nil)
	err := p.HandleSaleCommitted(context.Background(), sales.SaleCommittedEvent{SaleID: uuid.New()})
	require.ErrorIs(t, err, boom)
}

func TestNilWriterIsNoop(t *testing.T) {
	p := NewPublisher(nil, nil)
	require.NoError(t, p.HandleSaleCommitted(context.Background(), sales.SaleCommittedEvent{SaleID: uuid.New()}))
	require.NoError(t, p.Close())
}

func TestHeaderCarrierOverwrites(t *testing.T) {
	msg := kafka.Message{}
	c := headerCarrier{msg: &msg}
	c.Set("a", "1")
	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "2", c.Get("a"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}
