// Package schema normalizes relational column metadata into a portable column
// model and caches the tables of a data service.
//
// Vendor differences live behind the Dialect interface, selected by the
// service's driver tag. A Cache holds the normalized tables of one service and
// can be reloaded on demand, or on a PostgreSQL NOTIFY.
package schema

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

var ErrTableNotFound = errors.New("table not found")

type TableType string

const (
	TableTypeTable TableType = "TABLE"
	TableTypeView  TableType = "VIEW"
)

type Table struct {
	Schema      string    `json:"schema,omitempty"`
	Name        string    `json:"name"`
	Type        TableType `json:"type"`
	Columns     []Column  `json:"columns"`
	PrimaryKeys []string  `json:"primary_keys"`
}

// Column returns the column with the given name or label.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name || (c.Label != "" && c.Label == name) {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the single primary key column, or false for tables
// without one or with a composite key.
func (t Table) PrimaryKey() (Column, bool) {
	if len(t.PrimaryKeys) != 1 {
		return Column{}, false
	}
	return t.Column(t.PrimaryKeys[0])
}

// ColumnNames lists the column names in table order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Loader reads the tables of one data service.
type Loader interface {
	Load(ctx context.Context) (map[string]Table, error)
}

// Cache holds the normalized tables of one service, keyed by table name.
type Cache struct {
	service string
	loader  Loader
	logger  *zap.Logger
	tables  map[string]Table
	watch   chan map[string]Table
	mu      sync.RWMutex
}

func NewCache(service string, loader Loader, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		service: service,
		loader:  loader,
		logger:  logger,
		tables:  make(map[string]Table),
		watch:   make(chan map[string]Table, 1),
	}
}

// Service returns the name of the service the cache belongs to.
func (c *Cache) Service() string {
	return c.service
}

// Reload replaces the cached tables with a fresh load. On error the previous
// snapshot stays in place.
func (c *Cache) Reload(ctx context.Context) error {
	tables, err := c.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load schema of %s: %w", c.service, err)
	}

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()

	c.logger.Debug("schema loaded", zap.String("service", c.service), zap.Int("tables", len(tables)))
	c.publish(c.Snapshot())
	return nil
}

// publish hands the latest snapshot to Watch, replacing one not yet consumed.
func (c *Cache) publish(snap map[string]Table) {
	for {
		select {
		case c.watch <- snap:
			return
		default:
		}
		select {
		case <-c.watch:
		default:
		}
	}
}

// Watch delivers a snapshot after every successful reload. It has a single
// consumer; a snapshot not yet received is replaced by the next one.
func (c *Cache) Watch() <-chan map[string]Table {
	return c.watch
}

func (c *Cache) Snapshot() map[string]Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]Table, len(c.tables))
	maps.Copy(snap, c.tables)
	return snap
}

// Table returns the cached table by name.
func (c *Cache) Table(name string) (Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s.%s", ErrTableNotFound, c.service, name)
	}
	return t, nil
}

// Tables returns the cached tables sorted by name.
func (c *Cache) Tables() []Table {
	snap := c.Snapshot()
	out := make([]Table, 0, len(snap))
	for _, name := range slices.Sorted(maps.Keys(snap)) {
		out = append(out, snap[name])
	}
	return out
}
