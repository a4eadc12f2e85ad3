package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"sync"

	appconfig "satellite/config"
	"satellite/internal/channel"
	"satellite/logger"
	"satellite/models"
	"satellite/processor"
	"satellite/writer"
)

type streamCmd struct {
	archive bool
}

func (c *streamCmd) description() string {
	return "Subscribe to server-sent events for transmission messages."
}

func (c *streamCmd) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.archive, "archive", false, "Archive received events to S3 (requires storage.s3 configuration; default from archive.enabled)")
}

func (c *streamCmd) validate(*flag.FlagSet) error { return nil }

// archiveEnabled lets archive.enabled in the configuration stand in for
// the --archive flag.
func (c *streamCmd) archiveEnabled(cfg *appconfig.Config) bool {
	return c.archive || cfg.Archive.Enabled
}

func (c *streamCmd) run(r *runner) error {
	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	var pipeline *archivePipeline
	if c.archiveEnabled(r.cfg) {
		p, err := startArchive(ctx, r.cfg)
		if err != nil {
			return err
		}
		pipeline = p
	}

	logger.StartReport(ctx, r.log, r.cfg.Metrics.ReportInterval)

	// Handlers run on the reader goroutine; out serialises them with the
	// Listening banner.
	var out sync.Mutex
	emit := func(format string, args ...interface{}) {
		out.Lock()
		defer out.Unlock()
		fmt.Fprintf(r.stdout, format, args...)
	}

	emit("Listening to new messages. Press Enter to stop.\n")

	onEvent := func(e models.TransmissionEvent) {
		emit("Event: %s. Message: %s. Id: %s.\n", e.Event, e.Message, e.ID)
		if pipeline != nil {
			pipeline.channels.SendRaw(ctx, e)
		}
	}
	onDisconnect := func(n models.DisconnectNotice) {
		emit("Retry in: %s. Error: %v\n", n.ReconnectDelay, n.Err)
	}

	sub, err := r.client.SubscribeTransmissions(ctx, onEvent, onDisconnect)
	if err != nil {
		if pipeline != nil {
			cancel()
			pipeline.stop()
		}
		return err
	}

	waitForStop(ctx, r.stdin)

	sub.Stop()
	cancel()
	if pipeline != nil {
		pipeline.stop()
	}
	r.log.WithComponent("cli").WithField("last_event_id", sub.LastEventID()).Info("stream stopped")
	return nil
}

// waitForStop returns when a line is read from stdin or ctx is done. A
// closed stdin does not stop the stream.
func waitForStop(ctx context.Context, stdin io.Reader) {
	enter := make(chan struct{})
	if stdin != nil {
		go func() {
			if _, err := bufio.NewReader(stdin).ReadString('\n'); err == nil {
				close(enter)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-enter:
	}
}

// archivePipeline moves streamed events through batching into S3.
type archivePipeline struct {
	channels  *channel.Channels
	processor *processor.TransmissionProcessor
	writer    *writer.ArchiveWriter
}

func startArchive(ctx context.Context, cfg *appconfig.Config) (*archivePipeline, error) {
	if !cfg.Storage.S3.Enabled {
		return nil, usagef("Option '--archive' requires storage.s3.enabled in the configuration.")
	}

	channels := channel.NewChannels(cfg.Archive.RawBuffer, cfg.Archive.BatchBuffer)
	w, err := writer.NewArchiveWriter(ctx, cfg, channels.Batches)
	if err != nil {
		return nil, fmt.Errorf("create archive writer: %w", err)
	}
	p := processor.NewTransmissionProcessor(cfg, channels)

	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return &archivePipeline{channels: channels, processor: p, writer: w}, nil
}

// stop flushes the pipeline and closes its channels. The context given to
// startArchive must be done and no event may be sent afterwards.
func (a *archivePipeline) stop() {
	a.processor.Stop()
	a.writer.Stop()
	a.channels.Close()
}
