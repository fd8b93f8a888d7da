package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultChunkSize = 100

// HTTPPusher posts JSON message batches to an Expo-compatible push
// endpoint.
type HTTPPusher struct {
	URL       string
	ChunkSize int
	Client    *http.Client
}

func NewHTTPPusher(url string) *HTTPPusher {
	return &HTTPPusher{
		URL:       url,
		ChunkSize: defaultChunkSize,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPPusher) Chunk(msgs []Message) [][]Message {
	size := p.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
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

func (p *HTTPPusher) Send(ctx context.Context, chunk []Message) ([]Ticket, error) {
	body, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push chunk: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		Data []Ticket `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode push tickets: %w", err)
	}
	return result.Data, nil
}
