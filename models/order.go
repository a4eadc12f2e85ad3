package models

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses reported by the API.
const (
	OrderStatusPending      = "pending"
	OrderStatusPaid         = "paid"
	OrderStatusTransmitting = "transmitting"
	OrderStatusSent         = "sent"
	OrderStatusReceived     = "received"
	OrderStatusCancelled    = "cancelled"
	OrderStatusExpired      = "expired"
)

// Order is a request to broadcast a message, ranked in the queue by bid per byte.
type Order struct {
	Bid                   int64      `json:"bid"`
	MessageSize           int64      `json:"message_size"`
	BidPerByte            float64    `json:"bid_per_byte"`
	MessageDigest         string     `json:"message_digest"`
	Status                string     `json:"status"`
	UUID                  uuid.UUID  `json:"uuid"`
	CreatedAt             time.Time  `json:"created_at"`
	StartedTransmissionAt *time.Time `json:"started_transmission_at"`
	EndedTransmissionAt   *time.Time `json:"ended_transmission_at"`
	TxSeqNum              *int64     `json:"tx_seq_num"`
	UnpaidBid             int64      `json:"unpaid_bid"`
}

// ComputedBidPerByte derives the ranking value from bid and size. It
// returns 0 for an empty message.
func (o Order) ComputedBidPerByte() float64 {
	if o.MessageSize <= 0 {
		return 0
	}
	return float64(o.Bid) / float64(o.MessageSize)
}

// MessageResponse is the acknowledgement body of a cancellation.
type MessageResponse struct {
	Message string `json:"message"`
}
