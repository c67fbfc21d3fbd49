package pdata

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignalKindString(t *testing.T) {
	require.Equal(t, "logs", SignalLogs.String())
	require.Equal(t, "metrics", SignalMetrics.String())
	require.Equal(t, "traces", SignalTraces.String())
	require.Equal(t, "unknown", SignalKind(99).String())
}

func TestRawBytesSignalAndRawBytesSource(t *testing.T) {
	rb := RawBytes{Kind: SignalTraces, Data: []byte("payload")}
	require.Equal(t, SignalTraces, rb.Signal())

	var src RawBytesSource = rb
	require.Equal(t, []byte("payload"), src.RawBytes())
}

func TestNewPDataAssignsIDAndEmptyContext(t *testing.T) {
	p1 := NewPData(RawBytes{Kind: SignalLogs, Data: []byte("a")})
	p2 := NewPData(RawBytes{Kind: SignalLogs, Data: []byte("b")})

	require.NotEqual(t, p1.ID, p2.ID, "ids from distinct NewPData calls should not collide in practice")
	require.NotNil(t, p1.Context)
}

type fakeSubscriber struct {
	mu      sync.Mutex
	acked   []ID
	nacked  []ID
	reasons []string
}

func (f *fakeSubscriber) Ack(id ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
}

func (f *fakeSubscriber) Nack(id ID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, id)
	f.reasons = append(f.reasons, reason)
}

func TestContextFireDeliversAckToAllSubscribers(t *testing.T) {
	var ctx Context
	s1, s2 := &fakeSubscriber{}, &fakeSubscriber{}
	ctx.Subscribe(s1)
	ctx.Subscribe(s2)

	ctx.Fire(ID(7), true, "")

	require.Equal(t, []ID{7}, s1.acked)
	require.Equal(t, []ID{7}, s2.acked)
	require.Empty(t, s1.nacked)
}

func TestContextFireDeliversNackWithReason(t *testing.T) {
	var ctx Context
	s := &fakeSubscriber{}
	ctx.Subscribe(s)

	ctx.Fire(ID(3), false, "downstream exploded")

	require.Equal(t, []ID{3}, s.nacked)
	require.Equal(t, []string{"downstream exploded"}, s.reasons)
	require.Empty(t, s.acked)
}

func TestContextFireIsIdempotent(t *testing.T) {
	var ctx Context
	s := &fakeSubscriber{}
	ctx.Subscribe(s)

	ctx.Fire(ID(1), true, "")
	ctx.Fire(ID(1), false, "too late")

	require.Equal(t, []ID{1}, s.acked)
	require.Empty(t, s.nacked, "a second Fire must be a no-op once the context has already settled")
}

func TestContextFireConcurrentSubscribeIsSafe(t *testing.T) {
	var ctx Context
	var wg sync.WaitGroup
	subs := make([]*fakeSubscriber, 50)
	for i := range subs {
		subs[i] = &fakeSubscriber{}
		wg.Add(1)
		go func(s *fakeSubscriber) {
			defer wg.Done()
			ctx.Subscribe(s)
		}(subs[i])
	}
	wg.Wait()

	ctx.Fire(ID(42), true, "")

	for _, s := range subs {
		require.Len(t, s.acked, 1)
	}
}

func TestDataEnvelopeAndControlEnvelopeAreMutuallyExclusive(t *testing.T) {
	p := NewPData(RawBytes{Kind: SignalLogs, Data: []byte("x")})
	de := DataEnvelope(p)
	require.False(t, de.IsControl())
	require.NotNil(t, de.Data)
	require.Nil(t, de.Control)

	ce := ControlEnvelope(TimerTick())
	require.True(t, ce.IsControl())
	require.Nil(t, ce.Data)
	require.NotNil(t, ce.Control)
}

func TestControlMsgConstructors(t *testing.T) {
	ack := Ack(ID(5))
	require.Equal(t, ControlAck, ack.Kind)
	require.Equal(t, ID(5), ack.AckID)

	nack := Nack(ID(6), "bad")
	require.Equal(t, ControlNack, nack.Kind)
	require.Equal(t, "bad", nack.NackReason)

	cfg := Config([]byte("{}"))
	require.Equal(t, ControlConfig, cfg.Kind)
	require.Equal(t, []byte("{}"), cfg.ConfigPayload)

	sd := Shutdown(1500, "signal")
	require.Equal(t, ControlShutdown, sd.Kind)
	require.Equal(t, int64(1500), sd.ShutdownDeadlineMillis)
	require.Equal(t, "signal", sd.ShutdownReason)
}
