package domaintest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/qupredict/qupredict/internal/domain"
)

// SignalBus is an in-memory domain.SignalBus. Published payloads are both
// recorded for assertions and delivered to matching subscribers, so hub
// and poller tests can drive real fan-out.
type SignalBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][]domain.StreamMessage
	subs      []busSub
}

type busSub struct {
	pattern string
	ch      chan []byte
}

// NewSignalBus returns an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][]domain.StreamMessage),
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)

func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	for _, sub := range b.subs {
		if matchChannel(sub.pattern, channel) {
			select {
			case sub.ch <- payload:
			default:
			}
		}
	}
	return nil
}

func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 64)
	b.subs = append(b.subs, busSub{pattern: channel, ch: ch})
	return ch, nil
}

func (b *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%d-0", len(b.streams[stream])+1)
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (b *SignalBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	after := 0
	if lastID != "" {
		if n, err := strconv.Atoi(strings.SplitN(lastID, "-", 2)[0]); err == nil {
			after = n
		}
	}
	var out []domain.StreamMessage
	for i, msg := range b.streams[stream] {
		if i+1 <= after {
			continue
		}
		out = append(out, msg)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// Subscribers returns how many subscriptions are registered, so tests can
// wait for a component's Subscribe calls before publishing.
func (b *SignalBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Published returns the payloads published to an exact channel name.
func (b *SignalBus) Published(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published[channel]))
	copy(out, b.published[channel])
	return out
}

// Channels returns every channel that received at least one publish.
func (b *SignalBus) Channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for ch := range b.published {
		out = append(out, ch)
	}
	return out
}

// matchChannel supports the trailing-glob form the hub subscribes with,
// e.g. "escrow.*" matching "escrow.bet-1".
func matchChannel(pattern, channel string) bool {
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		return strings.HasPrefix(channel, pattern[:i])
	}
	return pattern == channel
}
