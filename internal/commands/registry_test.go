package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryKeepsOrderAndRejectsDuplicates(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	noop := func(ctx context.Context, in Interaction) (Reply, error) { return Public("ok"), nil }

	require.NoError(t, r.Register(Command{Name: "b", Handler: noop}))
	require.NoError(t, r.Register(Command{Name: "a", Handler: noop}))
	assert.Error(t, r.Register(Command{Name: "a", Handler: noop}))
	assert.Error(t, r.Register(Command{Name: "c"}))

	var names []string
	for _, cmd := range r.Commands() {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"b", "a"}, names)
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(Command{Name: "echo", Handler: func(ctx context.Context, in Interaction) (Reply, error) {
		return Public(in.String("text")), nil
	}}))
	require.NoError(t, r.Register(Command{Name: "fail", Handler: func(ctx context.Context, in Interaction) (Reply, error) {
		return Reply{}, errors.New("boom")
	}}))
	require.NoError(t, r.Register(Command{Name: "panic", Handler: func(ctx context.Context, in Interaction) (Reply, error) {
		panic("boom")
	}}))
	ctx := context.Background()

	assert.Equal(t, Public("hi"), r.Execute(ctx, "echo", Interaction{Options: map[string]string{"text": "hi"}}))
	assert.Equal(t, Private("Internal error."), r.Execute(ctx, "fail", Interaction{}))
	assert.Equal(t, Private("Internal error."), r.Execute(ctx, "panic", Interaction{}))
	assert.Equal(t, Private("Unknown command."), r.Execute(ctx, "missing", Interaction{}))
}

func TestInteractionBool(t *testing.T) {
	in := Interaction{Options: map[string]string{"yes": "true", "no": "false", "junk": "maybe"}}
	assert.True(t, in.Bool("yes"))
	assert.False(t, in.Bool("no"))
	assert.False(t, in.Bool("junk"))
	assert.False(t, in.Bool("absent"))
}
