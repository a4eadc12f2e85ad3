package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

func TestOrderDecodesNullableFields(t *testing.T) {
	body := `{"bid":1000,"message_size":5,"bid_per_byte":200,"message_digest":"abc","status":"pending",
"uuid":"409348bc-6af0-4999-b715-4136753979df","created_at":"2019-07-26T19:08:03Z",
"started_transmission_at":null,"ended_transmission_at":null,"tx_seq_num":null,"unpaid_bid":1000}`

	var o Order
	if err := json.Unmarshal([]byte(body), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.UUID != uuid.MustParse("409348bc-6af0-4999-b715-4136753979df") {
		t.Fatalf("unexpected uuid: %s", o.UUID)
	}
	if o.TxSeqNum != nil || o.StartedTransmissionAt != nil {
		t.Fatalf("expected nil optional fields: %+v", o)
	}
	if o.CreatedAt.Year() != 2019 {
		t.Fatalf("unexpected created_at: %s", o.CreatedAt)
	}
}

func TestComputedBidPerByte(t *testing.T) {
	cases := []struct {
		order Order
		want  float64
	}{
		{Order{Bid: 1000, MessageSize: 5}, 200},
		{Order{Bid: 10, MessageSize: 4}, 2.5},
		{Order{Bid: 10, MessageSize: 0}, 0},
	}
	for _, tc := range cases {
		if got := tc.order.ComputedBidPerByte(); got != tc.want {
			t.Errorf("ComputedBidPerByte(%d/%d) = %v, want %v", tc.order.Bid, tc.order.MessageSize, got, tc.want)
		}
	}
}
