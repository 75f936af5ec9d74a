/*
Package dynamo – model registry.

A Registry is an explicit session: it owns the name → Table mapping, the
client binding shared by its tables and the provisioning settings. Separate
registries in one process do not see each other's models.
*/
package dynamo

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Option configures a Registry.
type Option func(*Registry)

// WithClient binds c instead of lazily loading the default AWS client.
func WithClient(c Client) Option {
	return func(r *Registry) { r.ref.Set(c) }
}

// WithClientLoader replaces the lazy default client loader.
func WithClientLoader(load ClientLoader) Option {
	return func(r *Registry) {
		if load != nil {
			r.ref.load = load
		}
	}
}

// WithLogger sets the logger handed to every table.
func WithLogger(l Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithPollInterval sets the wait between describe polls in CreateTables.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) { r.provisioner.Interval = d }
}

// WithProvisionTimeout bounds each table's provisioning in CreateTables.
func WithProvisionTimeout(d time.Duration) Option {
	return func(r *Registry) { r.provisioner.Timeout = d }
}

// Registry maps model names to tables.
type Registry struct {
	ref         *ClientRef
	log         Logger
	provisioner Provisioner

	mu     sync.RWMutex
	models map[string]*Table
	order  []string
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		ref:    NewClientRef(nil, nil),
		log:    defaultLogger(),
		models: map[string]*Table{},
	}
	r.provisioner.Interval = DefaultPollInterval
	for _, opt := range opts {
		opt(r)
	}
	r.provisioner.Logger = r.log
	return r
}

// Define compiles cfg and registers the resulting table under name,
// replacing any previous definition. An invalid config is returned as a
// CodeConfiguration error and registers nothing.
func (r *Registry) Define(name string, cfg ModelConfig) (*Table, error) {
	t, err := NewTable(name, cfg, r.ref, r.log)
	if err != nil {
		return nil, err
	}
	r.Register(name, t)
	r.log.Trace("model defined", map[string]any{"model": name, "table": t.TableName()})
	return t, nil
}

// MustDefine is Define that panics on an invalid config.
func (r *Registry) MustDefine(name string, cfg ModelConfig) *Table {
	t, err := r.Define(name, cfg)
	if err != nil {
		panic(err)
	}
	return t
}

// Register stores t under name and binds it to the registry's client.
// Redefining a name keeps its original position in Models.
func (r *Registry) Register(name string, t *Table) {
	t.bind(r.ref)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[name]; !ok {
		r.order = append(r.order, name)
	}
	r.models[name] = t
}

// Model returns the table registered under name, or nil.
func (r *Registry) Model(name string) *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[name]
}

// Models returns the registered names in registration order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Reset forgets every model.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.models = map[string]*Table{}
	r.order = nil
	r.mu.Unlock()
}

// SetClient rebinds the shared client. Every registered table sees the new
// client immediately, including tables that had their own client set.
func (r *Registry) SetClient(c Client) {
	r.ref.Set(c)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.models {
		t.bind(r.ref)
	}
}

// Client returns the shared client, loading the default one on first use.
func (r *Registry) Client(ctx context.Context) (Client, error) {
	return r.ref.Get(ctx)
}

// CreateTables provisions every registered model in registration order and
// waits for each table to become ACTIVE. The first failure stops the batch;
// tables provisioned before it are left as they are. opts is keyed by model
// name; missing entries use default capacity.
func (r *Registry) CreateTables(ctx context.Context, opts map[string]*TableOptions) error {
	for _, name := range r.Models() {
		t := r.Model(name)
		if t == nil {
			continue
		}
		if err := r.provisioner.EnsureActive(ctx, t, opts[name]); err != nil {
			r.log.Error("create tables aborted", map[string]any{"model": name, "err": err.Error()})
			return err
		}
	}
	return nil
}

// CreateTablesAsync runs CreateTables through cb, or through the returned
// future when cb is nil.
func (r *Registry) CreateTablesAsync(ctx context.Context, opts map[string]*TableOptions, cb Callback[struct{}]) *Future[struct{}] {
	return dispatch(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.CreateTables(ctx, opts)
	})
}

// DefineYAML parses model definitions and defines each one in document order.
// Nothing is registered when any definition is invalid.
func (r *Registry) DefineYAML(data []byte) ([]*Table, error) {
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, err
	}
	tables := make([]*Table, 0, len(defs))
	for _, d := range defs {
		t, err := NewTable(d.Name, d.Config, r.ref, r.log)
		if err != nil {
			return nil, NewError(fmt.Sprintf("model %q", d.Name), WithCode(CodeConfiguration), WithCause(err))
		}
		tables = append(tables, t)
	}
	for i, t := range tables {
		r.Register(defs[i].Name, t)
	}
	return tables, nil
}
