// Package safego runs background goroutines that log a panic with its stack
// before it propagates. A TUI swallows anything written to stderr, so the
// log file is the only place a crash leaves a trace.
package safego

import (
	"log"
	"runtime/debug"
	"sync"
)

// Group tracks the goroutines of one component.
type Group struct {
	name    string
	logger  *log.Logger
	onPanic func(task string, r any)
	wg      sync.WaitGroup
}

// Option configures a Group.
type Option func(*Group)

// WithPanicHandler replaces the default handler, which re-raises the panic
// once it has been logged.
func WithPanicHandler(h func(task string, r any)) Option {
	return func(g *Group) { g.onPanic = h }
}

// New returns a group whose log lines are prefixed with name.
func New(name string, logger *log.Logger, opts ...Option) *Group {
	if logger == nil {
		panic("Group: logger cannot be nil")
	}
	g := &Group{
		name:    name,
		logger:  logger,
		onPanic: func(_ string, r any) { panic(r) },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Go runs fn in a new goroutine labelled task.
func (g *Group) Go(task string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.Printf("%s: PANIC in %s: %v\n%s", g.name, task, r, debug.Stack())
				g.onPanic(task, r)
			}
		}()
		fn()
	}()
}

// Wait blocks until every goroutine started by Go has returned.
func (g *Group) Wait() { g.wg.Wait() }
