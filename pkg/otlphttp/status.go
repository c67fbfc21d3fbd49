package otlphttp

import (
	"net/http"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

const pbContentType = "application/x-protobuf"

// gRPC status codes used in the Status{code,...} error payload, per
// spec.md §6's HTTP-status-to-gRPC-code table.
const (
	codeInvalidArgument = 3
	codeUnavailable      = 14
	codeInternal         = 13
)

func emptySuccessBody(kind pdata.SignalKind) []byte {
	var msg proto.Message
	switch kind {
	case pdata.SignalLogs:
		msg = &collogspb.ExportLogsServiceResponse{}
	case pdata.SignalMetrics:
		msg = &colmetricspb.ExportMetricsServiceResponse{}
	default:
		msg = &coltracepb.ExportTraceServiceResponse{}
	}
	b, _ := proto.Marshal(msg)
	return b
}

func writeSuccess(w http.ResponseWriter, kind pdata.SignalKind) {
	w.Header().Set("Content-Type", pbContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(emptySuccessBody(kind))
}

// writeStatus writes a Google-RPC-style Status{code, message} protobuf
// body with the given HTTP status.
func writeStatus(w http.ResponseWriter, httpStatus int, grpcCode int32, message string) {
	body, _ := proto.Marshal(&status.Status{Code: grpcCode, Message: message})
	w.Header().Set("Content-Type", pbContentType)
	w.WriteHeader(httpStatus)
	_, _ = w.Write(body)
}

func writeEmptyBody(w http.ResponseWriter, httpStatus int) {
	w.WriteHeader(httpStatus)
}

func writeBodyTooLarge(w http.ResponseWriter) {
	writeStatus(w, http.StatusBadRequest, codeInvalidArgument, "request body too large")
}

func writeUnsupportedMediaType(w http.ResponseWriter) {
	writeEmptyBody(w, http.StatusUnsupportedMediaType)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeEmptyBody(w, http.StatusMethodNotAllowed)
}

func writeNotFound(w http.ResponseWriter) {
	writeEmptyBody(w, http.StatusNotFound)
}

func writeServiceUnavailable(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusServiceUnavailable, codeUnavailable, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusInternalServerError, codeInternal, message)
}
