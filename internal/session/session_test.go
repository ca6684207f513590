package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
)

type stubLink struct {
	disconnects int
}

func (l *stubLink) Address() string { return "AA" }
func (l *stubLink) Write(context.Context, []byte, bool) error { return nil }
func (l *stubLink) Subscribe(context.Context, func([]byte)) error { return nil }
func (l *stubLink) Unsubscribe(context.Context) error { return nil }
func (l *stubLink) Disconnect() error {
	l.disconnects++
	return nil
}

func TestSession_AppendDrainOrder(t *testing.T) {
	s := NewSession("A", &stubLink{}, nil)
	s.Append([]byte{1})
	s.Append(nil)
	s.Append([]byte{2, 3})
	assert.Equal(t, 3, s.Pending())

	got := s.Drain()
	assert.Equal(t, [][]byte{{1}, {2, 3}}, got)
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, s.Drain())
}

func TestSession_ConcurrentAppend(t *testing.T) {
	s := NewSession("A", &stubLink{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Append([]byte{0x7A})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.Drain(), 1000)
}

func TestSession_Close(t *testing.T) {
	link := &stubLink{}
	r := vestwoods.NewReassembler(0, 0)
	s := NewSession("A", link, r)
	require.True(t, s.Connected())

	r.Ingest([]byte{0x7A, 0x00})
	s.Append([]byte{1, 2})

	require.NoError(t, s.Close())
	assert.False(t, s.Connected())
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, 1, link.disconnects)

	require.NoError(t, s.Close())
	assert.Equal(t, 2, link.disconnects)
}

func TestSession_MarkDisconnected(t *testing.T) {
	s := NewSession("A", &stubLink{}, nil)
	s.MarkDisconnected()
	assert.False(t, s.Connected())
	assert.NoError(t, s.Close())
}
