package push

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"pushplan/internal/engine"
	"pushplan/internal/models"
	"pushplan/internal/storage"
)

type fakePusher struct {
	chunkSize int
	failAt    int
	sent      [][]Message
	calls     int
}

func (p *fakePusher) Chunk(msgs []Message) [][]Message {
	size := p.chunkSize
	if size <= 0 {
		size = 2
	}
	var chunks [][]Message
	for len(msgs) > size {
		chunks = append(chunks, msgs[:size])
		msgs = msgs[size:]
	}
	if len(msgs) > 0 {
		chunks = append(chunks, msgs)
	}
	return chunks
}

func (p *fakePusher) Send(ctx context.Context, chunk []Message) ([]Ticket, error) {
	p.calls++
	if p.failAt == p.calls {
		return nil, errors.New("transport failure")
	}
	p.sent = append(p.sent, chunk)
	tickets := make([]Ticket, len(chunk))
	for i := range chunk {
		tickets[i] = Ticket{ID: "t", Status: "ok"}
	}
	return tickets, nil
}

type countTickets struct {
	total int
}

func (c *countTickets) HandleTickets(ctx context.Context, tickets []Ticket) {
	c.total += len(tickets)
}

func delivery(user, title string) engine.Delivery {
	return engine.Delivery{
		Instance: &models.Instance{ID: "i-" + user, UserID: user},
		Content:  models.Content{Title: title, Body: "body"},
	}
}

func TestSenderFansOutPerToken(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	store.AddToken(ctx, "u1", "ExponentPushToken[aaa]")
	store.AddToken(ctx, "u1", "ExponentPushToken[bbb]")

	pusher := &fakePusher{chunkSize: 10}
	tickets := &countTickets{}
	s := NewSender(store, pusher, tickets, 1000, zerolog.Nop())

	if err := s.Send(ctx, []engine.Delivery{delivery("u1", "hello")}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(pusher.sent) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(pusher.sent))
	}
	if len(pusher.sent[0]) != 2 {
		t.Fatalf("expected a message per device token, got %d", len(pusher.sent[0]))
	}
	if tickets.total != 2 {
		t.Fatalf("expected 2 tickets handled, got %d", tickets.total)
	}
}

func TestSenderSkipsUsersWithoutTokens(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	store.AddToken(ctx, "u2", "ExponentPushToken[ccc]")

	pusher := &fakePusher{chunkSize: 10}
	s := NewSender(store, pusher, nil, 1000, zerolog.Nop())

	batch := []engine.Delivery{delivery("u1", "no tokens"), delivery("u2", "has tokens")}
	if err := s.Send(ctx, batch); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(pusher.sent) != 1 || len(pusher.sent[0]) != 1 {
		t.Fatalf("expected exactly the tokened user's message, got %v", pusher.sent)
	}
	if pusher.sent[0][0].To != "ExponentPushToken[ccc]" {
		t.Fatalf("unexpected recipient %q", pusher.sent[0][0].To)
	}
}

func TestSenderSkipsMalformedTokens(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	store.AddToken(ctx, "u1", "not-a-push-token")
	store.AddToken(ctx, "u1", "ExponentPushToken[ok]")

	pusher := &fakePusher{chunkSize: 10}
	s := NewSender(store, pusher, nil, 1000, zerolog.Nop())

	if err := s.Send(ctx, []engine.Delivery{delivery("u1", "x")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(pusher.sent) != 1 || len(pusher.sent[0]) != 1 {
		t.Fatalf("malformed token must be dropped, got %v", pusher.sent)
	}
}

func TestSenderChunkFailureDoesNotAbortSiblings(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	store.AddToken(ctx, "u1", "ExponentPushToken[a]")
	store.AddToken(ctx, "u1", "ExponentPushToken[b]")
	store.AddToken(ctx, "u1", "ExponentPushToken[c]")
	store.AddToken(ctx, "u1", "ExponentPushToken[d]")

	// Chunk size 2 -> two chunks; the first fails.
	pusher := &fakePusher{chunkSize: 2, failAt: 1}
	s := NewSender(store, pusher, nil, 1000, zerolog.Nop())

	if err := s.Send(ctx, []engine.Delivery{delivery("u1", "x")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pusher.calls != 2 {
		t.Fatalf("expected both chunks attempted, got %d calls", pusher.calls)
	}
	if len(pusher.sent) != 1 {
		t.Fatalf("expected the surviving chunk delivered, got %d", len(pusher.sent))
	}
}

func TestSenderEmptyBatchNoTransportCall(t *testing.T) {
	store := storage.NewMemoryStorage()
	pusher := &fakePusher{}
	s := NewSender(store, pusher, nil, 1000, zerolog.Nop())

	if err := s.Send(context.Background(), nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pusher.calls != 0 {
		t.Fatal("transport must not be called for an empty batch")
	}
}

func TestHTTPPusherChunking(t *testing.T) {
	p := NewHTTPPusher("http://example.invalid/push")
	p.ChunkSize = 3

	msgs := make([]Message, 7)
	chunks := p.Chunk(msgs)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 3 || len(chunks[1]) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("unexpected chunk sizes: %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}
