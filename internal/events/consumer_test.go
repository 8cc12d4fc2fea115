package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

type fakeInvalidator struct {
	mu    sync.Mutex
	cells []spatial.CellID
	err   error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, cells ...spatial.CellID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cells = append(f.cells, cells...)
	return nil
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cells)
}

type fakeResetter struct {
	mu    sync.Mutex
	cells []string
}

func (r *fakeResetter) Reset(cells ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cells = append(r.cells, cells...)
}

type fakeSession struct {
	ctx    context.Context
	claims map[string][]int32
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return s.claims }
func (s *fakeSession) MemberID() string                         { return "m-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, m.Offset)
}

type fakeClaim struct{ ch chan *sarama.ConsumerMessage }

func (c fakeClaim) Topic() string                            { return "facility-events" }
func (c fakeClaim) Partition() int32                         { return 0 }
func (c fakeClaim) InitialOffset() int64                     { return 0 }
func (c fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func message(t *testing.T, offset int64, ev Event) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{
		Topic: "facility-events", Offset: offset, Timestamp: time.Now(), Value: b,
	}
}

func event(seq uint64, cells ...string) Event {
	return Event{Version: 1, Op: OpUpdate, FacilityID: "f-1", Cells: cells, Res: 7, Seq: seq, TS: time.Now().UTC()}
}

func TestHandleMessage_InvalidatesAndResetsHotness(t *testing.T) {
	inv := &fakeInvalidator{}
	hot := &fakeResetter{}
	c := NewConsumer(Config{Enabled: true}, inv, ConsumerOptions{Hotness: hot})

	require.NoError(t, c.handleMessage(context.Background(), message(t, 1, event(10, cellA, cellB))))
	assert.Equal(t, 2, inv.count())
	assert.ElementsMatch(t, []string{cellA, cellB}, hot.cells)
}

func TestHandleMessage_SkipsRedeliveredOffsets(t *testing.T) {
	inv := &fakeInvalidator{}
	c := NewConsumer(Config{Enabled: true}, inv, ConsumerOptions{})
	ctx := context.Background()

	require.NoError(t, c.handleMessage(ctx, message(t, 1, event(10, cellA))))
	require.NoError(t, c.handleMessage(ctx, message(t, 1, event(10, cellA))))
	assert.Equal(t, 1, inv.count())
}

// Seq comes from the publishing instance's clock; a lagging clock on another
// instance must not suppress its newer events.
func TestHandleMessage_IgnoresProducerClockSkew(t *testing.T) {
	inv := &fakeInvalidator{}
	c := NewConsumer(Config{Enabled: true}, inv, ConsumerOptions{})
	ctx := context.Background()

	require.NoError(t, c.handleMessage(ctx, message(t, 1, event(1_000, cellA))))
	require.NoError(t, c.handleMessage(ctx, message(t, 2, event(10, cellB))))
	assert.Equal(t, 2, inv.count())
}

func TestHandleMessage_FailedInvalidationIsRetryable(t *testing.T) {
	inv := &fakeInvalidator{err: errors.New("redis down")}
	c := NewConsumer(Config{Enabled: true}, inv, ConsumerOptions{})
	ctx := context.Background()

	err := c.handleMessage(ctx, message(t, 1, event(10, cellA)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errPoison)

	inv.err = nil
	require.NoError(t, c.handleMessage(ctx, message(t, 1, event(10, cellA))), "offset must not be recorded on failure")
	assert.Equal(t, 1, inv.count())
}

func TestHandleMessage_PoisonMessages(t *testing.T) {
	c := NewConsumer(Config{Enabled: true}, &fakeInvalidator{}, ConsumerOptions{})
	ctx := context.Background()

	err := c.handleMessage(ctx, &sarama.ConsumerMessage{Value: []byte("{not json")})
	assert.ErrorIs(t, err, errPoison)

	bad := event(1, cellA)
	bad.Op = "upsert"
	assert.ErrorIs(t, c.handleMessage(ctx, message(t, 1, bad)), errPoison)
}

func TestGroupHandler_MarksAfterSuccessAndTracksAssignment(t *testing.T) {
	inv := &fakeInvalidator{}
	c := NewConsumer(Config{Enabled: true}, inv, ConsumerOptions{})
	h := c.handler()
	sess := &fakeSession{ctx: context.Background(), claims: map[string][]int32{"facility-events": {0, 2}}}

	ready, _ := c.Readiness()
	assert.False(t, ready)

	require.NoError(t, h.Setup(sess))
	ready, parts := c.Readiness()
	assert.True(t, ready)
	assert.ElementsMatch(t, []int32{0, 2}, parts)

	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- message(t, 1, event(1, cellA))
	ch <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("garbage")}
	ch <- message(t, 3, event(2, cellB))
	close(ch)
	require.NoError(t, h.ConsumeClaim(sess, fakeClaim{ch: ch}))
	assert.Equal(t, []int64{1, 2, 3}, sess.marked)
	assert.Equal(t, 2, inv.count())

	inv.err = errors.New("redis down")
	ch2 := make(chan *sarama.ConsumerMessage, 1)
	ch2 <- message(t, 4, event(3, cellA))
	close(ch2)
	assert.Error(t, h.ConsumeClaim(sess, fakeClaim{ch: ch2}))
	assert.Equal(t, []int64{1, 2, 3}, sess.marked, "failed message must not be marked")

	require.NoError(t, h.Cleanup(sess))
	ready, _ = c.Readiness()
	assert.False(t, ready)
}

func TestStart_DisabledIsNoop(t *testing.T) {
	c := NewConsumer(Config{}, &fakeInvalidator{}, ConsumerOptions{})
	require.NoError(t, c.Start(context.Background()))
	c.Stop()

	err := NewConsumer(Config{Enabled: true}, &fakeInvalidator{}, ConsumerOptions{}).Start(context.Background())
	assert.Error(t, err)
}
