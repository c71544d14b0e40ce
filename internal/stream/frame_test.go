package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_AppendAssignsMonotonicSeq(t *testing.T) {
	r := NewRing(3)

	f1 := r.Append(time.Now(), []byte("a"))
	f2 := r.Append(time.Now(), []byte("b"))

	assert.Equal(t, uint64(1), f1.Seq)
	assert.Equal(t, uint64(2), f2.Seq)
	assert.Equal(t, uint64(2), r.LastSeq())
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(time.Now(), []byte{byte(i)})
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint64(3), snap[0].Seq)
	assert.Equal(t, uint64(4), snap[1].Seq)
	assert.Equal(t, uint64(5), snap[2].Seq)
	assert.Equal(t, snap[2], r.Newest())
}

func TestRing_SeqSurvivesEviction(t *testing.T) {
	r := NewRing(2)
	for i := 0; i < 10; i++ {
		r.Append(time.Now(), nil)
	}
	assert.Equal(t, uint64(10), r.LastSeq())
	assert.Equal(t, uint64(10), r.Newest().Seq)
}

func TestRing_EmptyState(t *testing.T) {
	r := NewRing(4)
	assert.Nil(t, r.Newest())
	assert.Empty(t, r.Snapshot())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(0), r.LastSeq())
}

func TestRing_ClampsZeroCapacity(t *testing.T) {
	r := NewRing(0)
	assert.Equal(t, 1, r.Cap())
	r.Append(time.Now(), []byte("x"))
	r.Append(time.Now(), []byte("y"))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []byte("y"), r.Newest().Data)
}

func TestSession_DeliverDropsWhenFull(t *testing.T) {
	s := newSession("cam", 2)

	require.True(t, s.deliver(Update{Frame: &Frame{Seq: 1}}))
	require.True(t, s.deliver(Update{Frame: &Frame{Seq: 2}}))
	require.False(t, s.deliver(Update{Frame: &Frame{Seq: 3}}))

	assert.Equal(t, uint64(2), s.Delivered())
	assert.Equal(t, uint64(1), s.Dropped())
	assert.Equal(t, uint64(2), s.LastSeq())

	// Consuming frees a slot; delivery works again and the session was
	// never detached by the drops.
	u := <-s.Updates()
	assert.Equal(t, uint64(1), u.Frame.Seq)
	require.True(t, s.deliver(Update{Frame: &Frame{Seq: 4}}))
}

func TestSession_CloseStopsDelivery(t *testing.T) {
	s := newSession("cam", 2)
	s.close()
	s.close()

	assert.False(t, s.deliver(Update{Frame: &Frame{Seq: 1}}))

	_, ok := <-s.Updates()
	assert.False(t, ok)

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestSession_UniqueIDs(t *testing.T) {
	a := newSession("cam", 1)
	b := newSession("cam", 1)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "cam", a.Camera())
}
