// Package receipt turns a completed transaction into the ESC/POS byte
// stream a narrow thermal printer expects.
package receipt

import (
	"strings"
	"time"
)

// Store identifies the shop printed in the receipt header.
type Store struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Item is one line of the receipt.
type Item struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Subtotal float64 `json:"subtotal"`
}

// Receipt is the print job built by the transaction service. Item
// subtotals are printed as given and are not checked against Subtotal.
type Receipt struct {
	Store         Store    `json:"store"`
	TransactionID string   `json:"transaction_id"`
	Timestamp     string   `json:"timestamp"`
	Items         []Item   `json:"items"`
	Subtotal      float64  `json:"subtotal"`
	Tax           float64  `json:"tax"`
	Total         float64  `json:"total"`
	PaymentMethod string   `json:"payment_method"`
	AmountPaid    *float64 `json:"amount_paid,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	Footer        string   `json:"footer,omitempty"`
}

// IsCash reports whether the payment method is cash.
func (r Receipt) IsCash() bool {
	switch strings.ToLower(strings.TrimSpace(r.PaymentMethod)) {
	case "cash", "tunai":
		return true
	}
	return false
}

// timestampLayouts are the forms the transaction service is known to send.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// displayTime renders the timestamp as dd/mm/yyyy hh:mm in its own zone.
// Unparseable values are printed as received.
func displayTime(ts string) string {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return ""
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format("02/01/2006 15:04")
		}
	}
	return ts
}
