package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/paperscore/internal/domain/ai"
)

type namedClient string

func (n namedClient) Complete(context.Context, ai.Request) (ai.Completion, error) {
	return ai.Completion{Text: string(n)}, nil
}

func TestRouterPicksClientByClass(t *testing.T) {
	r := ai.Router{Fast: namedClient("fast"), Strong: namedClient("strong")}

	c, err := r.Complete(context.Background(), ai.Request{Class: ai.ClassStrong})
	require.NoError(t, err)
	assert.Equal(t, "strong", c.Text)

	c, err = r.Complete(context.Background(), ai.Request{Class: ai.ClassFast})
	require.NoError(t, err)
	assert.Equal(t, "fast", c.Text)
}

func TestRouterMissingClient(t *testing.T) {
	r := ai.Router{Fast: namedClient("fast")}
	_, err := r.Complete(context.Background(), ai.Request{Class: ai.ClassStrong})
	assert.ErrorIs(t, err, ai.ErrNoClient)
}

func TestParsed(t *testing.T) {
	ok := ai.Ok(7)
	assert.False(t, ok.IsDegraded())
	assert.Equal(t, 7, ok.Value())

	d := ai.Degraded(50, errors.New("bad json"))
	assert.True(t, d.IsDegraded())
	assert.Equal(t, 50, d.Value())
	assert.EqualError(t, d.Err(), "bad json")
}
