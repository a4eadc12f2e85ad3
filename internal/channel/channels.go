package channel

import (
	"context"
	"sync"

	"satellite/logger"
	"satellite/models"
)

type ChannelStats struct {
	RawSent      int64
	BatchSent    int64
	RawDropped   int64
	BatchDropped int64
}

// Channels connects the transmission reader to the archive pipeline. Sends
// never block so a slow archive cannot stall event delivery.
type Channels struct {
	Raw     chan models.TransmissionEvent
	Batches chan models.TransmissionBatch

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannels(rawBufferSize, batchBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:     make(chan models.TransmissionEvent, rawBufferSize),
		Batches: make(chan models.TransmissionBatch, batchBufferSize),
		log:     log,
	}

	log.WithComponent("archive_channels").WithFields(logger.Fields{
		"raw_buffer_size":   rawBufferSize,
		"batch_buffer_size": batchBufferSize,
	}).Info("archive channels initialized")

	return c
}

// Close closes both channels. Senders must have stopped.
func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.Raw)
		close(c.Batches)
		c.log.WithComponent("archive_channels").Info("archive channels closed")
	})
}

func (c *Channels) SendRaw(ctx context.Context, evt models.TransmissionEvent) bool {
	select {
	case c.Raw <- evt:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("archive_channels").WithField("event_id", evt.ID).Warn("raw channel full, dropping event")
		return false
	}
}

func (c *Channels) SendBatch(ctx context.Context, batch models.TransmissionBatch) bool {
	select {
	case c.Batches <- batch:
		c.statsMutex.Lock()
		c.stats.BatchSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.BatchDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("archive_channels").WithField("batch_id", batch.BatchID.String()).Warn("batch channel full, dropping batch")
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
