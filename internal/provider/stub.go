package provider

import (
	"context"
	"hash/fnv"
	"sync"
)

// Stub is a scripted provider for tests. Responses are returned in order;
// when the script runs out, Fallback (or a plain "done" text) is returned.
type Stub struct {
	mu        sync.Mutex
	Responses []Response
	Fallback  *Response
	Requests  []*Request // every request received, for assertions
	EmbedDim  int
	ChatErr   error // returned on every call when set
}

func NewStub(responses ...Response) *Stub {
	return &Stub{Responses: responses, EmbedDim: 8}
}

func (s *Stub) Chat(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if s.ChatErr != nil {
		return nil, s.ChatErr
	}
	if len(s.Responses) == 0 {
		if s.Fallback != nil {
			resp := *s.Fallback
			return &resp, nil
		}
		return &Response{Text: "done", FinishReason: "stop"}, nil
	}
	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	if resp.FinishReason == "" {
		resp.FinishReason = "stop"
	}
	return &resp, nil
}

// Embed returns a deterministic pseudo-embedding derived from the text.
func (s *Stub) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := s.EmbedDim
	if dim <= 0 {
		dim = 8
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dim)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000 - 0.5
	}
	return vec, nil
}

func (s *Stub) Name() string {
	return "stub"
}

// RequestCount returns how many chat requests the stub has served.
func (s *Stub) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
