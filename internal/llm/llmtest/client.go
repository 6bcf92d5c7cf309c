package llmtest

import (
	"context"
	"sync"
)

// Client is a scripted llm.Client for tests.
type Client struct {
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	mu    sync.Mutex
	calls []Call
}

type Call struct {
	SystemPrompt string
	UserPrompt   string
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	c.mu.Unlock()
	return c.CompleteFunc(ctx, systemPrompt, userPrompt)
}

func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Replies returns a client that answers with each reply in turn and repeats
// the last one once exhausted.
func Replies(replies ...string) *Client {
	var mu sync.Mutex
	i := 0
	return &Client{
		CompleteFunc: func(context.Context, string, string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(replies) == 0 {
				return "", nil
			}
			r := replies[min(i, len(replies)-1)]
			i++
			return r, nil
		},
	}
}

// Blocking returns a client that never answers before its context ends.
func Blocking() *Client {
	return &Client{
		CompleteFunc: func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}
