// Package push fans resolved notifications out to device push tokens
// and hands transport-sized chunks to a Pusher.
package push

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pushplan/internal/engine"
	"pushplan/internal/storage"
)

// Message is one outbound push: a (content × device token) pair.
type Message struct {
	To    string `json:"to"`
	Sound string `json:"sound"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Ticket is a per-message acceptance receipt from the transport.
type Ticket struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Pusher is the delivery transport: it knows its chunk-size limit and
// sends one chunk at a time.
type Pusher interface {
	Chunk(msgs []Message) [][]Message
	Send(ctx context.Context, chunk []Message) ([]Ticket, error)
}

// TicketHandler receives the tickets of each sent chunk. Retry and
// dead-letter policy would hang off this; none is implemented.
type TicketHandler interface {
	HandleTickets(ctx context.Context, tickets []Ticket)
}

// DiscardTickets logs ticket counts and does nothing else.
type DiscardTickets struct {
	Log zerolog.Logger
}

func (d DiscardTickets) HandleTickets(ctx context.Context, tickets []Ticket) {
	d.Log.Debug().Int("tickets", len(tickets)).Msg("push tickets discarded")
}

// Sender resolves device tokens per user, builds one message per token,
// and sends pusher-sized chunks independently: a failed chunk is logged
// and does not abort its siblings.
type Sender struct {
	tokens  storage.TokenStore
	pusher  Pusher
	tickets TicketHandler
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewSender(tokens storage.TokenStore, pusher Pusher, tickets TicketHandler, chunksPerSecond float64, log zerolog.Logger) *Sender {
	if chunksPerSecond <= 0 {
		chunksPerSecond = 10
	}
	if tickets == nil {
		tickets = DiscardTickets{Log: log}
	}
	return &Sender{
		tokens:  tokens,
		pusher:  pusher,
		tickets: tickets,
		limiter: rate.NewLimiter(rate.Limit(chunksPerSecond), 1),
		log:     log,
	}
}

func validToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") && strings.HasSuffix(token, "]")
}

// Send delivers one dispatch tick's batch. Users with no registered
// tokens and malformed tokens are skipped with a log line, never an
// error.
func (s *Sender) Send(ctx context.Context, batch []engine.Delivery) error {
	var messages []Message
	for _, d := range batch {
		tokens, err := s.tokens.Tokens(ctx, d.Instance.UserID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", d.Instance.UserID).Msg("token lookup failed")
			continue
		}
		if len(tokens) == 0 {
			s.log.Info().Str("user_id", d.Instance.UserID).Msg("user has no push tokens, skipping")
			continue
		}
		for _, token := range tokens {
			if !validToken(token) {
				s.log.Info().Str("user_id", d.Instance.UserID).Msg("malformed push token, skipping")
				continue
			}
			messages = append(messages, Message{
				To:    token,
				Sound: "default",
				Title: d.Content.Title,
				Body:  d.Content.Body,
			})
		}
	}

	if len(messages) == 0 {
		return nil
	}

	for _, chunk := range s.pusher.Chunk(messages) {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		tickets, err := s.pusher.Send(ctx, chunk)
		if err != nil {
			s.log.Error().Err(err).Int("chunk", len(chunk)).Msg("push chunk failed")
			continue
		}
		s.tickets.HandleTickets(ctx, tickets)
	}
	return nil
}
