package fileexporter

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

type capturingSubscriber struct {
	mu   sync.Mutex
	acks []pdata.ID
	naks []string
}

func (s *capturingSubscriber) Ack(id pdata.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, id)
}

func (s *capturingSubscriber) Nack(id pdata.ID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.naks = append(s.naks, reason)
}

func TestExportWritesLineAndAcks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	exp := New(Config{Path: path})
	defer exp.Shutdown(context.Background())

	sub := &capturingSubscriber{}
	pd := pdata.NewPData(pdata.RawBytes{Kind: pdata.SignalLogs, Data: []byte("hello")})
	pd.Context.Subscribe(sub)

	require.NoError(t, exp.Export(context.Background(), pdata.DataEnvelope(pd)))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(content))
	require.Len(t, sub.acks, 1)
	require.Empty(t, sub.naks)
}

func TestExportNacksUnsupportedPayload(t *testing.T) {
	dir := t.TempDir()
	exp := New(Config{Path: filepath.Join(dir, "out.log")})
	defer exp.Shutdown(context.Background())

	sub := &capturingSubscriber{}
	pd := pdata.NewPData(unsupportedPayload{})
	pd.Context.Subscribe(sub)

	require.NoError(t, exp.Export(context.Background(), pdata.DataEnvelope(pd)))
	require.Empty(t, sub.acks)
	require.Len(t, sub.naks, 1)
}

func TestExportIgnoresControlEnvelopes(t *testing.T) {
	dir := t.TempDir()
	exp := New(Config{Path: filepath.Join(dir, "out.log")})
	defer exp.Shutdown(context.Background())

	require.NoError(t, exp.Export(context.Background(), pdata.ControlEnvelope(pdata.TimerTick())))
}

type unsupportedPayload struct{}

func (unsupportedPayload) Signal() pdata.SignalKind { return pdata.SignalLogs }
