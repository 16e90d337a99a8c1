package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reasons carried by LedgerChangedMessage.
const (
	ReasonReconciled         = "reconciled"
	ReasonTransactionWritten = "transaction_written"
	ReasonStudentWritten     = "student_written"
)

// LedgerChangedMessage tells consumers that an owner's ledger changed in a
// given month. It carries no ledger data; consumers read the store.
type LedgerChangedMessage struct {
	OwnerID   string    `json:"owner_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage creates a message stamped with the current time.
func NewLedgerChangedMessage(ownerID string, year, month int, reason string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		OwnerID:   ownerID,
		Year:      year,
		Month:     month,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes and checks a message.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID == "" {
		return nil, fmt.Errorf("message has no owner_id")
	}
	if msg.Month < 1 || msg.Month > 12 {
		return nil, fmt.Errorf("message month %d out of range", msg.Month)
	}
	return &msg, nil
}
