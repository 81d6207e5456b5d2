package safego

import (
	"bytes"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNew_NilLogger(t *testing.T) {
	assert.PanicsWithValue(t, "Group: logger cannot be nil", func() { New("Scanner", nil) })
}

func TestGroup_Wait(t *testing.T) {
	g := New("Scanner", log.New(io.Discard, "", 0))
	var mu sync.Mutex
	done := 0
	for range 3 {
		g.Go("work", func() {
			mu.Lock()
			done++
			mu.Unlock()
		})
	}
	g.Wait()
	assert.Equal(t, 3, done)
}

func TestGroup_Panic(t *testing.T) {
	var out syncBuffer
	type caught struct {
		task string
		r    any
	}
	got := make(chan caught, 1)
	g := New("Scanner", log.New(&out, "", 0), WithPanicHandler(func(task string, r any) {
		got <- caught{task, r}
	}))

	g.Go("tick", func() { panic("boom") })
	g.Wait()

	c := <-got
	assert.Equal(t, "tick", c.task)
	assert.Equal(t, "boom", c.r)
	require.Contains(t, out.String(), "Scanner: PANIC in tick: boom")
	assert.Contains(t, out.String(), "goroutine", "stack trace logged")
}
