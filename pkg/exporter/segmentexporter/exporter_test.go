package segmentexporter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/quiver"
)

func TestExportWritesSegmentAndAcks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.quiver")
	exp, err := New(Config{Path: path, TargetRowsPerFile: 1_000_000})
	require.NoError(t, err)

	sub := &testSubscriber{}
	pd := pdata.NewPData(pdata.RawBytes{Kind: pdata.SignalLogs, Data: []byte("payload-1")})
	pd.Context.Subscribe(sub)

	require.NoError(t, exp.Export(context.Background(), pdata.DataEnvelope(pd)))
	require.NoError(t, exp.Shutdown(context.Background()))

	require.Len(t, sub.acks, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r, err := quiver.OpenSegment(data)
	require.NoError(t, err)
	require.Equal(t, 1, r.StreamCount())
	require.Equal(t, 1, r.BundleCount())
}

func TestExportNacksUnsupportedPayload(t *testing.T) {
	dir := t.TempDir()
	exp, err := New(Config{Path: filepath.Join(dir, "out.quiver")})
	require.NoError(t, err)
	defer exp.Shutdown(context.Background())

	sub := &testSubscriber{}
	pd := pdata.NewPData(unsupportedPayload{})
	pd.Context.Subscribe(sub)

	require.NoError(t, exp.Export(context.Background(), pdata.DataEnvelope(pd)))
	require.Empty(t, sub.acks)
	require.Len(t, sub.naks, 1)
}

type testSubscriber struct {
	acks []pdata.ID
	naks []string
}

func (s *testSubscriber) Ack(id pdata.ID)             { s.acks = append(s.acks, id) }
func (s *testSubscriber) Nack(_ pdata.ID, r string)   { s.naks = append(s.naks, r) }

type unsupportedPayload struct{}

func (unsupportedPayload) Signal() pdata.SignalKind { return pdata.SignalLogs }
