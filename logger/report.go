package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	warns  int64
	errors int64
}

var (
	eventsRead     int64
	eventBytesRead int64
	disconnects    int64
	apiErrors      int64
	archiveWrites  int64
	archiveBytes   int64
	components     sync.Map // map[string]*componentStat
)

// Counters is a point-in-time copy of the runtime counters.
type Counters struct {
	EventsRead     int64
	EventBytesRead int64
	Disconnects    int64
	APIErrors      int64
	ArchiveWrites  int64
	ArchiveBytes   int64
}

func componentStats(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentStats(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentStats(component).errors, 1)
}

func IncrementEventRead(size int) {
	atomic.AddInt64(&eventsRead, 1)
	atomic.AddInt64(&eventBytesRead, int64(size))
}

func IncrementDisconnect() {
	atomic.AddInt64(&disconnects, 1)
}

func IncrementAPIError() {
	atomic.AddInt64(&apiErrors, 1)
}

func IncrementArchiveWrite(size int64) {
	atomic.AddInt64(&archiveWrites, 1)
	atomic.AddInt64(&archiveBytes, size)
}

// Snapshot returns the current counter values.
func Snapshot() Counters {
	return Counters{
		EventsRead:     atomic.LoadInt64(&eventsRead),
		EventBytesRead: atomic.LoadInt64(&eventBytesRead),
		Disconnects:    atomic.LoadInt64(&disconnects),
		APIErrors:      atomic.LoadInt64(&apiErrors),
		ArchiveWrites:  atomic.LoadInt64(&archiveWrites),
		ArchiveBytes:   atomic.LoadInt64(&archiveBytes),
	}
}

// StartReport begins periodic logging of runtime and stream statistics.
// It stops when ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	counters := Snapshot()
	componentData := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		componentData[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	log.WithComponent("report").WithFields(Fields{
		"events_read":      counters.EventsRead,
		"event_bytes_read": counters.EventBytesRead,
		"disconnects":      counters.Disconnects,
		"api_errors":       counters.APIErrors,
		"archive_writes":   counters.ArchiveWrites,
		"archive_bytes":    counters.ArchiveBytes,
		"goroutines":       runtime.NumGoroutine(),
		"heap_mb":          int64(mem.HeapAlloc) / 1024 / 1024,
		"components":       componentData,
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("EventsRead"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(counters.EventsRead))},
		{MetricName: aws.String("EventBytesRead"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(counters.EventBytesRead))},
		{MetricName: aws.String("Disconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(counters.Disconnects))},
		{MetricName: aws.String("APIErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(counters.APIErrors))},
		{MetricName: aws.String("ArchiveWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(counters.ArchiveWrites))},
		{MetricName: aws.String("HeapMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(mem.HeapAlloc) / 1024 / 1024)},
	}
	publishMetrics(ctx, data)
}
