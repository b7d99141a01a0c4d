// Package aitest provides scripted Transcriber and Completer fakes.
package aitest

import (
	"context"
	"errors"
	"sync"

	"github.com/dharsanguruparan/fieldmemo/internal/ai"
)

// ErrExhausted is returned once a fake has no scripted replies left.
var ErrExhausted = errors.New("aitest: no scripted reply left")

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Transcriber returns scripted transcripts in order and records every call.
type Transcriber struct {
	mu      sync.Mutex
	replies []Reply
	Calls   []TranscribeCall
}

// TranscribeCall records the arguments of one Transcribe call.
type TranscribeCall struct {
	Audio    []byte
	Filename string
}

// NewTranscriber scripts the given replies.
func NewTranscriber(replies ...Reply) *Transcriber {
	return &Transcriber{replies: replies}
}

func (t *Transcriber) Transcribe(_ context.Context, audio []byte, filename string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, TranscribeCall{Audio: append([]byte(nil), audio...), Filename: filename})
	if len(t.replies) == 0 {
		return "", ErrExhausted
	}
	r := t.replies[0]
	t.replies = t.replies[1:]
	return r.Text, r.Err
}

// CallCount reports how many times Transcribe ran.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Completer returns scripted completions in order and records every request.
type Completer struct {
	mu       sync.Mutex
	replies  []Reply
	Requests []ai.CompletionRequest
}

// NewCompleter scripts the given replies.
func NewCompleter(replies ...Reply) *Completer {
	return &Completer{replies: replies}
}

func (c *Completer) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if len(c.replies) == 0 {
		return "", ErrExhausted
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.Text, r.Err
}

// CallCount reports how many times Complete ran.
func (c *Completer) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// Last returns the most recent request, or the zero value.
func (c *Completer) Last() ai.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Requests) == 0 {
		return ai.CompletionRequest{}
	}
	return c.Requests[len(c.Requests)-1]
}
