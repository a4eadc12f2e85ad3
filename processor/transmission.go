package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	appconfig "satellite/config"
	"satellite/internal/channel"
	"satellite/logger"
	"satellite/models"
)

// TransmissionProcessor flattens transmission events into archive records and
// groups them into batches, flushed on size or age.
type TransmissionProcessor struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	batch     *models.TransmissionBatch
	lastFlush time.Time
}

func NewTransmissionProcessor(cfg *appconfig.Config, channels *channel.Channels) *TransmissionProcessor {
	return &TransmissionProcessor{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (p *TransmissionProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("transmission processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.lastFlush = time.Now()
	p.mu.Unlock()

	p.log.WithComponent("transmission_processor").WithFields(logger.Fields{
		"batch_size":    p.config.Archive.BatchSize,
		"batch_timeout": p.config.Archive.BatchTimeout.String(),
	}).Info("starting transmission processor")

	p.wg.Add(1)
	go p.worker()

	p.wg.Add(1)
	go p.flusher()

	return nil
}

// Stop waits for the workers to exit once ctx is done, then archives any
// events still buffered.
func (p *TransmissionProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.drain()

	p.mu.Lock()
	p.flush()
	p.mu.Unlock()
	p.log.WithComponent("transmission_processor").Info("transmission processor stopped")
}

func (p *TransmissionProcessor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case evt, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

// drain consumes events left in the raw channel after the worker exited.
func (p *TransmissionProcessor) drain() {
	for {
		select {
		case evt, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			p.handleEvent(evt)
		default:
			return
		}
	}
}

func (p *TransmissionProcessor) handleEvent(evt models.TransmissionEvent) {
	p.addToBatch(NewRecord(evt))
}

// NewRecord flattens an event. Payloads that decode as an order fill the
// order columns; anything else is archived as the raw payload only.
func NewRecord(evt models.TransmissionEvent) models.TransmissionRecord {
	rec := models.TransmissionRecord{
		EventID:    evt.ID,
		Event:      evt.Event,
		Payload:    evt.Message,
		ReceivedAt: evt.ReceivedAt.UnixMilli(),
	}

	var order models.Order
	if err := json.Unmarshal([]byte(evt.Message), &order); err != nil {
		return rec
	}
	if order.UUID != uuid.Nil {
		rec.OrderUUID = order.UUID.String()
	}
	rec.Status = order.Status
	rec.Bid = order.Bid
	rec.MessageSize = order.MessageSize
	if order.TxSeqNum != nil {
		rec.TxSeqNum = *order.TxSeqNum
	}
	return rec
}

func (p *TransmissionProcessor) addToBatch(rec models.TransmissionRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.batch == nil {
		p.batch = &models.TransmissionBatch{
			BatchID:   uuid.New(),
			Records:   make([]models.TransmissionRecord, 0, p.config.Archive.BatchSize),
			Timestamp: time.Now().UTC(),
		}
		p.lastFlush = time.Now()
	}

	p.batch.Records = append(p.batch.Records, rec)
	p.batch.RecordCount = len(p.batch.Records)

	if p.batch.RecordCount >= p.config.Archive.BatchSize {
		p.flush()
	}
}

func (p *TransmissionProcessor) flusher() {
	defer p.wg.Done()

	interval := p.config.Archive.BatchTimeout
	if interval <= 0 || interval > time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flushTimedOut()
		}
	}
}

func (p *TransmissionProcessor) flushTimedOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.batch != nil && time.Since(p.lastFlush) >= p.config.Archive.BatchTimeout {
		p.flush()
	}
}

// flush hands the current batch to the writer. Callers hold p.mu.
func (p *TransmissionProcessor) flush() {
	if p.batch == nil || p.batch.RecordCount == 0 {
		return
	}
	batch := *p.batch
	p.batch = nil
	p.lastFlush = time.Now()

	// The batch is handed over even after ctx is done so Stop can archive it.
	if !p.channels.SendBatch(context.WithoutCancel(p.ctx), batch) {
		return
	}
	logger.LogDataFlowEntry(p.log.WithComponent("transmission_processor"), "transmission_processor", "archive_writer", batch.RecordCount, "transmission_batch")
}
