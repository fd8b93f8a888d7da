package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
)

// AMQPPusher publishes message chunks to a push exchange for an
// external delivery worker to drain. Tickets are synthesized locally
// since acceptance happens downstream.
type AMQPPusher struct {
	client    *rabbitmq.RabbitClient
	publisher *rabbitmq.Publisher
	chunkSize int
	log       zerolog.Logger
}

func NewAMQPPusher(url string, chunkSize int, log zerolog.Logger) (*AMQPPusher, error) {
	config := rabbitmq.ClientConfig{
		URL:       url,
		Heartbeat: 10 * time.Second,
		ReconnectStrat: retry.Strategy{
			Attempts: 10,
			Delay:    2 * time.Second,
			Backoff:  2,
		},
		ProducingStrat: retry.Strategy{
			Attempts: 3,
			Delay:    100 * time.Millisecond,
			Backoff:  2,
		},
	}

	client, err := rabbitmq.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	if err := client.DeclareExchange("push", "direct", true, false, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to declare push exchange: %w", err)
	}
	if err := client.DeclareQueue("push.outbound", "push", "outbound", true, false, true, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to declare outbound queue: %w", err)
	}

	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	log.Info().Msg("AMQP pusher initialized")
	return &AMQPPusher{
		client:    client,
		publisher: rabbitmq.NewPublisher(client, "push", "application/json"),
		chunkSize: chunkSize,
		log:       log,
	}, nil
}

func (p *AMQPPusher) Chunk(msgs []Message) [][]Message {
	var chunks [][]Message
	for len(msgs) > p.chunkSize {
		chunks = append(chunks, msgs[:p.chunkSize])
		msgs = msgs[p.chunkSize:]
	}
	if len(msgs) > 0 {
		chunks = append(chunks, msgs)
	}
	return chunks
}

func (p *AMQPPusher) Send(ctx context.Context, chunk []Message) ([]Ticket, error) {
	body, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push chunk: %w", err)
	}

	if err := p.publisher.Publish(ctx, body, "outbound"); err != nil {
		return nil, fmt.Errorf("failed to publish push chunk: %w", err)
	}

	tickets := make([]Ticket, len(chunk))
	for i := range chunk {
		tickets[i] = Ticket{ID: uuid.NewString(), Status: "queued"}
	}
	return tickets, nil
}

func (p *AMQPPusher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
