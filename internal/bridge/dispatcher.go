package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/shared"
)

// Request names an operation and carries its arguments: a map of named values or, for blob operations,
// a serialized JSON string.
type Request struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

// Result is the outcome of one call. Exactly one of Value and Err is meaningful; Value may be nil on success.
type Result struct {
	Method string     `json:"method"`
	Value  any        `json:"result,omitempty"`
	Err    *CallError `json:"error,omitempty"`
}

// Error returns Err as an error, or nil.
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Poster delivers a result on the caller's primary context.
type Poster func(Result)

// Dispatcher validates requests and forwards them to the engine. It keeps no state between calls.
type Dispatcher struct {
	engine   Engine
	registry *Registry
	logger   *log.Logger
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the default [Catalogue].
func NewDispatcher(engine Engine, logger *log.Logger) *Dispatcher {
	return NewDispatcherWithRegistry(engine, NewRegistry(Catalogue()...), logger)
}

// NewDispatcherWithRegistry creates a dispatcher over a custom registry.
func NewDispatcherWithRegistry(engine Engine, registry *Registry, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Dispatcher{
		engine:   engine,
		registry: registry,
		logger:   shared.WithLogger(logger, "component", "bridge"),
	}
}

// Operations lists the catalogue.
func (d *Dispatcher) Operations() []Operation {
	return d.registry.Operations()
}

// Lookup returns the named operation.
func (d *Dispatcher) Lookup(name string) (Operation, bool) {
	return d.registry.Lookup(name)
}

// Invoke performs the call on the current goroutine.
func (d *Dispatcher) Invoke(ctx context.Context, req Request) Result {
	res := Result{Method: req.Method}

	op, ok := d.registry.Lookup(req.Method)
	if !ok {
		res.Err = unsupportedOperation(req.Method)
		d.logger.Warn("unsupported operation", "method", req.Method)
		return res
	}

	args, cerr := decodeArgs(op, req.Arguments)
	if cerr != nil {
		res.Err = cerr
		d.logger.Warn("invalid arguments", "method", req.Method, "error", cerr.Message)
		return res
	}

	start := time.Now()
	value, err := d.call(ctx, op, args)
	if err != nil {
		res.Err = engineError(req.Method, err)
		d.logger.Error("engine call failed", "method", req.Method, "error", err, "elapsed", time.Since(start))
		return res
	}

	d.logger.Debug("engine call finished", "method", req.Method, "elapsed", time.Since(start))
	res.Value = value
	return res
}

func (d *Dispatcher) call(ctx context.Context, op Operation, args Args) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return op.Invoke(ctx, d.engine, args)
}

// Dispatch runs the call on its own goroutine. The channel receives exactly one result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) <-chan Result {
	out := make(chan Result, 1)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		out <- d.Invoke(ctx, req)
		close(out)
	}()
	return out
}

// Call runs the call on its own goroutine and hands the result to post.
func (d *Dispatcher) Call(ctx context.Context, req Request, post Poster) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		post(d.Invoke(ctx, req))
	}()
}

// Wait blocks until every call started with Dispatch or Call has delivered its result.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
