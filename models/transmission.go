package models

import (
	"time"

	"github.com/google/uuid"
)

/////////////////////////////////////////////////////////////////////////////
/////////////////////////////// SUBSCRIPTION ////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// TransmissionEvent is one event pushed on the transmissions stream.
type TransmissionEvent struct {
	Event      string    `json:"event"`
	Message    string    `json:"message"`
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// DisconnectNotice is delivered once per dropped stream, before the
// reader waits ReconnectDelay and reconnects.
type DisconnectNotice struct {
	ReconnectDelay time.Duration
	Err            error
	Attempt        int
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// ARCHIVE //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// TransmissionRecord is a transmission event flattened for archiving. The
// order fields are only set when the event payload decoded as an order.
type TransmissionRecord struct {
	EventID     string `json:"event_id"`
	Event       string `json:"event"`
	OrderUUID   string `json:"order_uuid"`
	Status      string `json:"status"`
	Bid         int64  `json:"bid"`
	MessageSize int64  `json:"message_size"`
	TxSeqNum    int64  `json:"tx_seq_num"`
	Payload     string `json:"payload"`
	ReceivedAt  int64  `json:"received_at"`
}

// TransmissionBatch groups records for a single archive upload.
type TransmissionBatch struct {
	BatchID     uuid.UUID            `json:"batch_id"`
	Records     []TransmissionRecord `json:"records"`
	RecordCount int                  `json:"record_count"`
	Timestamp   time.Time            `json:"timestamp"`
}
