package inbound

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"dealdesk/internal/domain/entity/chat"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedTurn struct {
	first  chat.InboundEvent
	merged string
}

type captor struct {
	mu    sync.Mutex
	turns []capturedTurn
}

func (c *captor) handle(_ context.Context, first chat.InboundEvent, merged string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, capturedTurn{first: first, merged: merged})
}

func (c *captor) snapshot() []capturedTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]capturedTurn, len(c.turns))
	copy(out, c.turns)
	return out
}

func passthrough(_ context.Context, event chat.InboundEvent) (string, error) {
	return event.Text, nil
}

func event(sender, chatID int64, text string) chat.InboundEvent {
	return chat.InboundEvent{
		SenderID: sender,
		ChatID:   chatID,
		Kind:     chat.EventText,
		Text:     text,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestBufferMergesFragmentsInOrder(t *testing.T) {
	c := &captor{}
	b := NewBuffer(passthrough, c.handle, 40*time.Millisecond, testLogger())

	b.Add(event(7, 100, "one"))
	time.Sleep(10 * time.Millisecond)
	b.Add(event(7, 100, "two"))
	time.Sleep(10 * time.Millisecond)
	b.Add(event(7, 100, "three"))

	// Window keeps resetting, so nothing is flushed yet.
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, c.snapshot())

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	turns := c.snapshot()
	assert.Equal(t, "one\ntwo\nthree", turns[0].merged)
	assert.Equal(t, int64(7), turns[0].first.SenderID)

	// A later event starts a fresh, independent turn.
	b.Add(event(7, 100, "four"))
	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "four", c.snapshot()[1].merged)
}

func TestBufferKeysAreIndependent(t *testing.T) {
	c := &captor{}
	b := NewBuffer(passthrough, c.handle, 30*time.Millisecond, testLogger())

	b.Add(event(1, 10, "from one"))
	b.Add(event(2, 10, "from two"))
	b.Add(event(1, 20, "other chat"))

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	merged := map[string]bool{}
	for _, turn := range c.snapshot() {
		merged[turn.merged] = true
	}
	assert.True(t, merged["from one"])
	assert.True(t, merged["from two"])
	assert.True(t, merged["other chat"])
}

func TestFlushDeliversPendingBuffersImmediately(t *testing.T) {
	c := &captor{}
	b := NewBuffer(passthrough, c.handle, time.Hour, testLogger())

	b.Add(event(5, 50, "left"))
	b.Add(event(5, 50, "behind"))

	b.Flush(context.Background())

	turns := c.snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, "left\nbehind", turns[0].merged)

	// Nothing fires later.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1)
}

func TestBufferSkipsUnresolvableFragments(t *testing.T) {
	resolve := func(_ context.Context, ev chat.InboundEvent) (string, error) {
		if ev.Kind == chat.EventVoice {
			return "", fmt.Errorf("transcription failed")
		}
		return ev.Text, nil
	}

	c := &captor{}
	b := NewBuffer(resolve, c.handle, 20*time.Millisecond, testLogger())

	b.Add(event(3, 30, "hello"))
	voice := chat.InboundEvent{SenderID: 3, ChatID: 30, Kind: chat.EventVoice, MediaRef: "v1"}
	b.Add(voice)
	b.Add(event(3, 30, "still there?"))

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello\nstill there?", c.snapshot()[0].merged)
}

func TestBufferIgnoresEventsWithoutIdentity(t *testing.T) {
	c := &captor{}
	b := NewBuffer(passthrough, c.handle, 10*time.Millisecond, testLogger())

	b.Add(chat.InboundEvent{SenderID: 0, ChatID: 10, Text: "nope"})
	b.Add(chat.InboundEvent{SenderID: 10, ChatID: 0, Text: "nope"})

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}
