package otlpbytes

import (
	"math"
	"strconv"
)

// Field numbers from the OTLP logs/metrics/trace/common proto
// definitions, reproduced here because this package parses their wire
// bytes directly rather than through generated message types.
const (
	// LogsData / Export*ServiceRequest (logs) share this shape.
	FieldLogsDataResourceLogs = 1

	FieldResourceLogsResource   = 1
	FieldResourceLogsScopeLogs  = 2
	FieldResourceLogsSchemaURL  = 3

	FieldScopeLogsScope      = 1
	FieldScopeLogsLogRecords = 2

	FieldLogRecordTimeUnixNano         = 1
	FieldLogRecordSeverityNumber       = 2
	FieldLogRecordSeverityText         = 3
	FieldLogRecordBody                 = 5
	FieldLogRecordAttributes           = 6
	FieldLogRecordDroppedAttrsCount    = 7
	FieldLogRecordFlags                = 8
	FieldLogRecordTraceID              = 9
	FieldLogRecordSpanID               = 10
	FieldLogRecordObservedTimeUnixNano = 11

	// MetricsData / Export*ServiceRequest (metrics).
	FieldMetricsDataResourceMetrics = 1
	FieldResourceMetricsResource    = 1
	FieldResourceMetricsScopeMetrics = 2

	// TracesData / Export*ServiceRequest (traces).
	FieldTracesDataResourceSpans = 1
	FieldResourceSpansResource   = 1
	FieldResourceSpansScopeSpans = 2

	FieldResourceAttributes = 1

	FieldKeyValueKey   = 1
	FieldKeyValueValue = 2

	FieldAnyValueStringValue = 1
	FieldAnyValueBoolValue   = 2
	FieldAnyValueIntValue    = 3
	FieldAnyValueDoubleValue = 4
	FieldAnyValueArrayValue  = 5
	FieldAnyValueKvlistValue = 6
	FieldAnyValueBytesValue  = 7
)

// LogRecordView is a convenience wrapper over a Parser known to hold a
// LogRecord message.
type LogRecordView struct{ Parser }

func LogRecord(buf []byte) LogRecordView { return LogRecordView{New(buf)} }

func (v LogRecordView) SeverityText() (string, bool) { return v.String(FieldLogRecordSeverityText) }
func (v LogRecordView) SeverityNumber() (int64, bool) {
	return v.Int64(FieldLogRecordSeverityNumber)
}
func (v LogRecordView) TimeUnixNano() (uint64, bool) {
	return v.Fixed64(FieldLogRecordTimeUnixNano)
}
func (v LogRecordView) TraceID() ([]byte, bool) { return v.FixedBytes(FieldLogRecordTraceID, 16) }
func (v LogRecordView) SpanID() ([]byte, bool)  { return v.FixedBytes(FieldLogRecordSpanID, 8) }
func (v LogRecordView) Attributes() *Iter       { return v.Iter(FieldLogRecordAttributes) }

// AnyValueString coerces an AnyValue message's scalar variants
// (string/bool/int/double) to a string, matching the batch processor's
// metadata-extraction rule: arrays and maps are ignored (returns "",
// false).
func AnyValueString(buf []byte) (string, bool) {
	v := New(buf)
	if s, ok := v.String(FieldAnyValueStringValue); ok {
		return s, true
	}
	if b, ok := v.Varint(FieldAnyValueBoolValue); ok {
		if b != 0 {
			return "true", true
		}
		return "false", true
	}
	if i, ok := v.Int64(FieldAnyValueIntValue); ok {
		return strconv.FormatInt(i, 10), true
	}
	if d, ok := v.Fixed64(FieldAnyValueDoubleValue); ok {
		return strconv.FormatFloat(math.Float64frombits(d), 'g', -1, 64), true
	}
	return "", false
}

// KeyValueView is a convenience wrapper over a Parser known to hold a
// KeyValue message.
type KeyValueView struct{ Parser }

func KeyValue(buf []byte) KeyValueView { return KeyValueView{New(buf)} }

func (v KeyValueView) Key() (string, bool) { return v.String(FieldKeyValueKey) }
func (v KeyValueView) ValueString() (string, bool) {
	b, ok := v.BytesField(FieldKeyValueValue)
	if !ok {
		return "", false
	}
	return AnyValueString(b)
}

// FirstResourceAttrs locates the first ResourceX message in a
// Export*ServiceRequest/XData payload of the given kind and returns its
// attributes as a KeyValue iterator, matching batch_processor's
// "first resource" extraction rule.
func FirstResourceAttrs(requestBytes []byte, resourceListField int, resourceField int) (*Iter, bool) {
	req := New(requestBytes)
	resourceX, ok := req.Message(resourceListField)
	if !ok {
		return nil, false
	}
	resource, ok := resourceX.Message(resourceField)
	if !ok {
		return nil, false
	}
	return resource.Iter(FieldResourceAttributes), true
}
