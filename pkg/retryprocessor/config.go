// Package retryprocessor implements a retry queue that tracks in-flight
// messages by an internally assigned sequence number, schedules retries
// with exponential backoff on NACK, and re-emits ready messages on every
// TimerTick control message.
package retryprocessor

// maxFailedMessageAgeSecs is the age past which cleanup removes a pending
// message whose retry count exceeds MaxRetries. handleNack already drops
// such a message from the queue when it exhausts its retries, so cleanup
// normally finds none.
const maxFailedMessageAgeSecs = 300

// Config controls retry scheduling. It is also the shape decoded from a
// ControlConfig control message's JSON payload for hot reload.
type Config struct {
	MaxRetries          int     `json:"max_retries"`
	InitialRetryDelayMs int64   `json:"initial_retry_delay_ms"`
	MaxRetryDelayMs     int64   `json:"max_retry_delay_ms"`
	BackoffMultiplier   float64 `json:"backoff_multiplier"`
	MaxPendingMessages  int     `json:"max_pending_messages"`
	CleanupIntervalSecs int64   `json:"cleanup_interval_secs"`
}

// DefaultConfig mirrors the defaults of the retry processor this package
// is grounded on.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		InitialRetryDelayMs: 1000,
		MaxRetryDelayMs:     30000,
		BackoffMultiplier:   2.0,
		MaxPendingMessages:  10000,
		CleanupIntervalSecs: 60,
	}
}
