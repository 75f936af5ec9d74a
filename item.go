/*
Package dynamo – active record.

An Item is an attribute map bound to its Table. Persistence methods delegate
to the Table and merge whatever the store returns back into the local map.
*/
package dynamo

import (
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
)

// Item is a record bound to a Table. It is safe for concurrent use.
type Item struct {
	table *Table

	mu    sync.RWMutex
	attrs Attrs
}

func newItem(t *Table, attrs Attrs) *Item {
	if attrs == nil {
		attrs = Attrs{}
	}
	return &Item{table: t, attrs: attrs}
}

// New wraps a copy of attrs in an unsaved Item.
func (t *Table) New(attrs Attrs) *Item { return newItem(t, copyAttrs(attrs)) }

// Table returns the table the item is bound to.
func (i *Item) Table() *Table { return i.table }

// Get returns one attribute, nil when unset.
func (i *Item) Get(field string) any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.attrs[field]
}

// Attrs returns a copy of every attribute.
func (i *Item) Attrs() Attrs {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return copyAttrs(i.attrs)
}

// Set deep-merges partial into the item. Nested maps merge key by key;
// any other value, slices included, replaces the current one.
func (i *Item) Set(partial Attrs) *Item {
	i.mu.Lock()
	deepMerge(i.attrs, partial)
	i.mu.Unlock()
	return i
}

// Save creates the item, overwriting any stored item with the same key.
func (i *Item) Save(ctx context.Context) error {
	created, err := i.table.Create(ctx, i.Attrs(), nil)
	if err != nil {
		return err
	}
	i.Set(created.Attrs())
	return nil
}

// Update writes the item's attributes as a partial update. Local state changes
// only when the store returns attributes.
func (i *Item) Update(ctx context.Context, opts *UpdateOptions) error {
	updated, err := i.table.Update(ctx, i.Attrs(), opts)
	if err != nil {
		return err
	}
	if updated != nil {
		i.Set(updated.Attrs())
	}
	return nil
}

// Destroy deletes the stored item. Local attributes are left as they are.
func (i *Item) Destroy(ctx context.Context, opts *DestroyOptions) error {
	s := i.table.schema
	_, err := i.table.Destroy(ctx, i.Get(s.HashKey), i.Get(s.RangeKey), opts)
	return err
}

// SaveAsync runs Save through cb, or through the returned future when cb is nil.
func (i *Item) SaveAsync(ctx context.Context, cb Callback[*Item]) *Future[*Item] {
	return dispatch(ctx, cb, func(ctx context.Context) (*Item, error) {
		if err := i.Save(ctx); err != nil {
			return nil, err
		}
		return i, nil
	})
}

// UpdateAsync runs Update through cb, or through the returned future when cb is nil.
func (i *Item) UpdateAsync(ctx context.Context, opts *UpdateOptions, cb Callback[*Item]) *Future[*Item] {
	return dispatch(ctx, cb, func(ctx context.Context) (*Item, error) {
		if err := i.Update(ctx, opts); err != nil {
			return nil, err
		}
		return i, nil
	})
}

// DestroyAsync runs Destroy through cb, or through the returned future when cb is nil.
func (i *Item) DestroyAsync(ctx context.Context, opts *DestroyOptions, cb Callback[*Item]) *Future[*Item] {
	return dispatch(ctx, cb, func(ctx context.Context) (*Item, error) {
		if err := i.Destroy(ctx, opts); err != nil {
			return nil, err
		}
		return i, nil
	})
}

// MarshalJSON renders the attributes.
func (i *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Attrs())
}

func (i *Item) String() string {
	b, err := i.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%s<%v>", i.table.name, err)
	}
	return fmt.Sprintf("%s%s", i.table.name, b)
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				deepMerge(dm, sm)
				continue
			}
		}
		dst[k] = copyValue(v)
	}
}

func copyAttrs(in Attrs) Attrs {
	if in == nil {
		return Attrs{}
	}
	out := make(Attrs, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyAttrs(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	}
	return v
}
