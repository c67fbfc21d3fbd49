// Package batchprocessor groups raw OTLP payloads by a configurable set
// of resource-attribute keys and emits each group as one merged payload,
// either once it reaches send_batch_size or on the next TimerTick after
// it has sat idle past timeout.
package batchprocessor

import (
	"fmt"
	"time"
)

// MaxSendBatchSize is the hard ceiling on Config.SendBatchSize.
const MaxSendBatchSize = 1000

// Config controls batching.
type Config struct {
	SendBatchSize             uint32
	Timeout                   time.Duration
	MetadataKeys              []string
	MetadataCardinalityLimit  uint32
}

// Validate mirrors the original processor's constructor-time checks.
func (c Config) Validate() error {
	if c.SendBatchSize > MaxSendBatchSize {
		return fmt.Errorf("batchprocessor: send_batch_size must be <= %d", MaxSendBatchSize)
	}
	if len(c.MetadataKeys) == 0 {
		return fmt.Errorf("batchprocessor: metadata_keys must not be empty")
	}
	if c.MetadataCardinalityLimit == 0 {
		return fmt.Errorf("batchprocessor: metadata_cardinality_limit must be greater than 0")
	}
	return nil
}
