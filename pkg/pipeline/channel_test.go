package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

func rawEnvelope(s string) pdata.Envelope {
	return pdata.DataEnvelope(pdata.NewPData(pdata.RawBytes{Kind: pdata.SignalLogs, Data: []byte(s)}))
}

func TestChannelSendRecvRoundTrip(t *testing.T) {
	c := NewChannel(1)
	require.Equal(t, 1, c.Cap())

	err := c.Send(context.Background(), rawEnvelope("a"))
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	env, ok, err := c.Recv(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", string(env.Data.Payload.(pdata.RawBytes).Data))
}

func TestChannelSendBlocksUntilContextCancelled(t *testing.T) {
	c := NewChannel(1)
	require.NoError(t, c.Send(context.Background(), rawEnvelope("fill")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Send(ctx, rawEnvelope("second"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelTrySendAndTryRecv(t *testing.T) {
	c := NewChannel(1)
	require.True(t, c.TrySend(rawEnvelope("a")))
	require.False(t, c.TrySend(rawEnvelope("b")), "a full channel must reject TrySend rather than block")

	env, ok := c.TryRecv()
	require.True(t, ok)
	require.Equal(t, "a", string(env.Data.Payload.(pdata.RawBytes).Data))

	_, ok = c.TryRecv()
	require.False(t, ok)
}

func TestChannelRecvUnblocksOnClose(t *testing.T) {
	c := NewChannel(1)
	c.Close()

	_, ok, err := c.Recv(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
