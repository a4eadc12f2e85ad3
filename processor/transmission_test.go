package processor

import (
	"context"
	"testing"
	"time"

	appconfig "satellite/config"
	"satellite/internal/channel"
	"satellite/models"
)

func archiveConfig(batchSize int, timeout time.Duration) *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Archive.BatchSize = batchSize
	cfg.Archive.BatchTimeout = timeout
	return cfg
}

func TestNewRecordDecodesOrderPayload(t *testing.T) {
	evt := models.TransmissionEvent{
		Event:      "transmission-started",
		Message:    `{"uuid":"409348bc-6af0-4999-b715-4136753979df","status":"transmitting","bid":12000,"message_size":512,"tx_seq_num":42}`,
		ID:         "17",
		ReceivedAt: time.UnixMilli(1700000000000),
	}

	rec := NewRecord(evt)
	if rec.OrderUUID != "409348bc-6af0-4999-b715-4136753979df" {
		t.Fatalf("unexpected uuid %q", rec.OrderUUID)
	}
	if rec.Status != "transmitting" || rec.Bid != 12000 || rec.MessageSize != 512 || rec.TxSeqNum != 42 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.EventID != "17" || rec.Event != "transmission-started" || rec.ReceivedAt != 1700000000000 {
		t.Fatalf("unexpected event fields: %+v", rec)
	}
	if rec.Payload != evt.Message {
		t.Fatal("payload should be kept verbatim")
	}
}

func TestNewRecordKeepsPlainPayload(t *testing.T) {
	rec := NewRecord(models.TransmissionEvent{Event: "message", Message: "hello", ID: "1"})
	if rec.OrderUUID != "" || rec.Bid != 0 {
		t.Fatalf("plain payload should not fill order fields: %+v", rec)
	}
	if rec.Payload != "hello" {
		t.Fatalf("unexpected payload %q", rec.Payload)
	}
}

func TestTransmissionProcessorFlushesOnSize(t *testing.T) {
	ch := channel.NewChannels(8, 8)
	p := NewTransmissionProcessor(archiveConfig(2, time.Hour), ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected error on second start")
	}

	ch.SendRaw(ctx, models.TransmissionEvent{ID: "1", Message: "a"})
	ch.SendRaw(ctx, models.TransmissionEvent{ID: "2", Message: "b"})

	select {
	case batch := <-ch.Batches:
		if batch.RecordCount != 2 || len(batch.Records) != 2 {
			t.Fatalf("unexpected batch size %d", batch.RecordCount)
		}
		if batch.Records[0].EventID != "1" || batch.Records[1].EventID != "2" {
			t.Fatalf("records out of order: %+v", batch.Records)
		}
		if batch.BatchID.String() == "" {
			t.Fatal("missing batch id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for batch")
	}

	cancel()
	p.Stop()
}

func TestTransmissionProcessorFlushesOnTimeout(t *testing.T) {
	ch := channel.NewChannels(8, 8)
	p := NewTransmissionProcessor(archiveConfig(100, 20*time.Millisecond), ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	ch.SendRaw(ctx, models.TransmissionEvent{ID: "1", Message: "a"})

	select {
	case batch := <-ch.Batches:
		if batch.RecordCount != 1 {
			t.Fatalf("unexpected batch size %d", batch.RecordCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for batch")
	}

	cancel()
	p.Stop()
}

func TestTransmissionProcessorStopFlushesPending(t *testing.T) {
	ch := channel.NewChannels(8, 8)
	p := NewTransmissionProcessor(archiveConfig(100, time.Hour), ch)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	p.wg.Wait()

	// Events still queued after the worker exited are archived by Stop.
	ch.SendRaw(context.Background(), models.TransmissionEvent{ID: "late", Message: "x"})
	p.Stop()

	select {
	case batch := <-ch.Batches:
		if batch.RecordCount != 1 || batch.Records[0].EventID != "late" {
			t.Fatalf("unexpected batch: %+v", batch)
		}
	default:
		t.Fatal("expected pending batch after stop")
	}
}
