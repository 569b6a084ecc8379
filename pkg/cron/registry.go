package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Handler is the async function a registered kind runs on each firing. ec
// exposes the job's decoded, validated parameters and a line-oriented log
// sink; a returned error marks the execution FAILED, a panic is recovered
// and treated the same way.
type Handler func(ctx context.Context, ec *ExecutionContext) error

// Kind is one registered job type: its parameter shape (used to decode and
// validate params_json) and the handler it dispatches to.
type Kind struct {
	Schema      reflect.Type
	Handler     Handler
	Description string
}

// ExecutionContext is what a handler sees for one firing: its decoded
// parameters (the concrete type registered for the kind) and a Log method
// that appends a structured message to the execution row.
type ExecutionContext struct {
	CronJobID string
	Params    any

	mu       sync.Mutex
	messages []string
}

// Log appends a line to this firing's execution record.
func (ec *ExecutionContext) Log(line string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.messages = append(ec.messages, line)
}

func (ec *ExecutionContext) snapshotMessages() []string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]string, len(ec.messages))
	copy(out, ec.messages)
	return out
}

// registry is the process-wide closed map of job kinds. Registration only
// happens at process start, before the manager begins scheduling; there is
// no support for deregistering a kind.
type registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func newRegistry() *registry {
	return &registry{kinds: make(map[string]Kind)}
}

// register adds a kind, keyed by identifier. params is a zero value of the
// struct type params_json decodes into; only its type is used.
func (r *registry) register(identifier string, params any, handler Handler, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[identifier] = Kind{
		Schema:      reflect.TypeOf(params),
		Handler:     handler,
		Description: description,
	}
}

func (r *registry) lookup(identifier string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[identifier]
	return k, ok
}

// decodeParams unmarshals raw params_json into a fresh instance of kind's
// registered schema type and validates it with the shared validator.
func decodeParams(k Kind, paramsJSON string) (any, error) {
	ptr := reflect.New(k.Schema)
	if paramsJSON == "" {
		paramsJSON = "{}"
	}
	if err := json.Unmarshal([]byte(paramsJSON), ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if err := validate.Struct(ptr.Interface()); err != nil {
		return nil, fmt.Errorf("validate params: %w", err)
	}
	return ptr.Elem().Interface(), nil
}

var validate = validator.New()
