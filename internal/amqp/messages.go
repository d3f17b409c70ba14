package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"quotesheet/internal/sheets"
)

// SheetChangedMessage is published after every accepted edit or append.
// It carries the resulting totals so consumers never need to read the sheet.
type SheetChangedMessage struct {
	SheetID   string    `json:"sheet_id"`
	Op        string    `json:"op"`
	RowID     int       `json:"row_id"`
	RowCount  int       `json:"row_count"`
	Total     float64   `json:"total"`
	TotalCost float64   `json:"total_cost"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSheetChangedMessage builds the wire form of a sheet change.
func NewSheetChangedMessage(c sheets.Change) *SheetChangedMessage {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &SheetChangedMessage{
		SheetID:   c.SheetID,
		Op:        c.Op,
		RowID:     c.RowID,
		RowCount:  c.RowCount,
		Total:     c.Totals.Total,
		TotalCost: c.Totals.TotalCost,
		Timestamp: ts.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SheetChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SheetChangedMessageFromJSON decodes and sanity checks a message body.
func SheetChangedMessageFromJSON(data []byte) (*SheetChangedMessage, error) {
	var msg SheetChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SheetID == "" {
		return nil, fmt.Errorf("sheet change without sheet_id")
	}
	switch msg.Op {
	case sheets.OpEdit, sheets.OpAppend:
	default:
		return nil, fmt.Errorf("unknown sheet change op %q", msg.Op)
	}
	return &msg, nil
}
