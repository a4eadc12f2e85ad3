package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "satellite/config"
	"satellite/logger"
	"satellite/models"
)

const uploadTimeout = 30 * time.Second

// transmissionRecord defines the parquet schema of archived events.
type transmissionRecord struct {
	EventID     string `parquet:"name=event_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Event       string `parquet:"name=event, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderUUID   string `parquet:"name=order_uuid, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status      string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Bid         int64  `parquet:"name=bid, type=INT64"`
	MessageSize int64  `parquet:"name=message_size, type=INT64"`
	TxSeqNum    int64  `parquet:"name=tx_seq_num, type=INT64"`
	Payload     string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReceivedAt  int64  `parquet:"name=received_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// objectPutter is the part of the S3 client the writer uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type memFileWriter struct{ buffer *bytes.Buffer }

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }
func (m *memFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

// ArchiveWriter consumes transmission batches and uploads them to S3 as
// snappy compressed parquet. Records are buffered in memory and flushed on
// the configured interval.
type ArchiveWriter struct {
	cfg         *appconfig.Config
	batchChan   <-chan models.TransmissionBatch
	s3Client    objectPutter
	buffer      []models.TransmissionRecord
	mu          sync.Mutex
	flushTicker *time.Ticker
	ctx         context.Context
	wg          *sync.WaitGroup
	running     bool
	log         *logger.Log
}

// NewArchiveWriter initializes the writer with AWS credentials from cfg or
// the default chain.
func NewArchiveWriter(ctx context.Context, cfg *appconfig.Config, batchChan <-chan models.TransmissionBatch) (*ArchiveWriter, error) {
	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("archive requires storage.s3.enabled")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})
	return newArchiveWriter(cfg, batchChan, s3Client), nil
}

func newArchiveWriter(cfg *appconfig.Config, batchChan <-chan models.TransmissionBatch, client objectPutter) *ArchiveWriter {
	return &ArchiveWriter{
		cfg:       cfg,
		batchChan: batchChan,
		s3Client:  client,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
}

func (w *ArchiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	interval := w.cfg.Archive.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	w.flushTicker = time.NewTicker(interval)
	w.mu.Unlock()

	w.wg.Add(1)
	go w.worker()

	w.wg.Add(1)
	go w.flushLoop()

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":         w.cfg.Storage.S3.Bucket,
		"prefix":         w.cfg.Archive.Prefix,
		"flush_interval": interval.String(),
	}).Info("archive writer started")
	return nil
}

// Stop waits for the workers to exit once ctx is done, then uploads every
// batch still queued or buffered.
func (w *ArchiveWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.wg.Wait()
	w.drain()
	w.flushBuffer()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

// drain buffers batches left in the channel after the worker exited.
func (w *ArchiveWriter) drain() {
	for {
		select {
		case batch, ok := <-w.batchChan:
			if !ok {
				return
			}
			w.addBatch(batch)
		default:
			return
		}
	}
}

func (w *ArchiveWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case batch, ok := <-w.batchChan:
			if !ok {
				return
			}
			w.addBatch(batch)
		}
	}
}

func (w *ArchiveWriter) addBatch(batch models.TransmissionBatch) {
	w.mu.Lock()
	w.buffer = append(w.buffer, batch.Records...)
	w.mu.Unlock()
}

func (w *ArchiveWriter) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flushBuffer()
		}
	}
}

func (w *ArchiveWriter) flushBuffer() {
	w.mu.Lock()
	records := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(records) == 0 {
		return
	}
	if err := w.writeRecords(records, time.Now().UTC()); err != nil {
		w.log.WithComponent("archive_writer").WithError(err).WithField("records", len(records)).Error("archive upload failed")
	}
}

func (w *ArchiveWriter) writeRecords(records []models.TransmissionRecord, at time.Time) error {
	start := time.Now()
	data, err := createParquet(records)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}

	key := s3Key(w.cfg.Archive.Prefix, at)
	if err := w.upload(key, data); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	size := int64(len(data))
	duration := time.Since(start)
	fields := logger.Fields{
		"s3_key":      key,
		"records":     len(records),
		"bytes":       size,
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
	}
	if duration > 0 {
		fields["throughput_bytes_per_sec"] = float64(size) / duration.Seconds()
	}
	w.log.WithComponent("archive_writer").WithFields(fields).Info("archive batch uploaded")
	logger.IncrementArchiveWrite(size)
	w.log.LogMetric("archive_writer", "archive_bytes", size, "counter", nil)
	return nil
}

func createParquet(records []models.TransmissionRecord) ([]byte, error) {
	mw := newMemFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(transmissionRecord), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range records {
		rec := transmissionRecord{
			EventID:     r.EventID,
			Event:       r.Event,
			OrderUUID:   r.OrderUUID,
			Status:      r.Status,
			Bid:         r.Bid,
			MessageSize: r.MessageSize,
			TxSeqNum:    r.TxSeqNum,
			Payload:     r.Payload,
			ReceivedAt:  r.ReceivedAt,
		}
		if err := pw.Write(rec); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mw.Bytes(), nil
}

func (w *ArchiveWriter) upload(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), uploadTimeout)
	defer cancel()

	_, err := w.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.cfg.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	return err
}

func s3Key(prefix string, at time.Time) string {
	timePath := fmt.Sprintf("year=%04d/month=%02d/day=%02d/hour=%02d", at.Year(), int(at.Month()), at.Day(), at.Hour())
	filename := fmt.Sprintf("transmissions_%d.parquet", at.UnixNano())
	return path.Join(prefix, timePath, filename)
}
