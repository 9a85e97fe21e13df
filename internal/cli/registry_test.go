package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommand struct {
	name string
	args []string
	err  error
}

func (f *fakeCommand) Name() string        { return f.name }
func (f *fakeCommand) Description() string { return "fake " + f.name }
func (f *fakeCommand) Run(args []string) error {
	f.args = args
	return f.err
}

func newTestRegistry(cmds ...Command) (*Registry, *bytes.Buffer) {
	r := NewRegistry()
	out := &bytes.Buffer{}
	r.out = out
	for _, c := range cmds {
		r.Register(c)
	}
	return r, out
}

func TestRegistry_Dispatch(t *testing.T) {
	keys := &fakeCommand{name: "keys"}
	sessions := &fakeCommand{name: "sessions", err: errors.New("failed")}
	r, _ := newTestRegistry(keys, sessions)

	require.NoError(t, r.Run([]string{"keys", "list", "-path", "/tmp"}))
	assert.Equal(t, []string{"list", "-path", "/tmp"}, keys.args)

	assert.EqualError(t, r.Run([]string{"sessions", "stats"}), "failed")
}

func TestRegistry_Usage(t *testing.T) {
	r, out := newTestRegistry(&fakeCommand{name: "users"}, &fakeCommand{name: "keys"})

	assert.Error(t, r.Run(nil))
	assert.Contains(t, out.String(), "fake keys")

	out.Reset()
	assert.NoError(t, r.Run([]string{"help"}))
	assert.Less(t, bytes.Index(out.Bytes(), []byte("keys")), bytes.Index(out.Bytes(), []byte("users")))

	err := r.Run([]string{"nope"})
	assert.EqualError(t, err, "unknown command: nope")
}
