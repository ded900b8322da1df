package writer

import "time"

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int           // Flush when this many rows are pending
	FlushInterval time.Duration // Flush at least this often
	BufferSize    int           // Archive queue capacity; overflow is dropped
	FlushTimeout  time.Duration // Deadline for one COPY
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
		BufferSize:    10000,
		FlushTimeout:  10 * time.Second,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts int64
	Errors  int64
	Dropped int64 // Rows rejected because the queue was full
	Flushes int64
}
