package ai

import (
	"context"
	"fmt"
)

// ModelClass picks between the cheap high-volume model and the stronger one.
type ModelClass string

const (
	ClassFast   ModelClass = "fast"
	ClassStrong ModelClass = "strong"
)

// Request is one model call. JSON asks the provider for a single JSON object.
type Request struct {
	Class     ModelClass
	System    string
	User      string
	MaxTokens int
	JSON      bool
}

// Completion is the raw model answer.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Router sends each request to the client registered for its model class.
type Router struct {
	Fast   Client
	Strong Client
}

func (r Router) Complete(ctx context.Context, req Request) (Completion, error) {
	var c Client
	switch req.Class {
	case ClassStrong:
		c = r.Strong
	default:
		c = r.Fast
	}
	if c == nil {
		return Completion{}, fmt.Errorf("%w: %s", ErrNoClient, req.Class)
	}
	return c.Complete(ctx, req)
}
