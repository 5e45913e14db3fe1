// Package service manages the data services exposed by the gateway: one
// database connection pool and schema cache per configured database.
package service

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/schema"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
)

var (
	ErrServiceNotFound      = errors.New("service not found")
	ErrServiceAlreadyExists = errors.New("service already exists")
	ErrInvalidName          = errors.New("service name is required")
)

// Config describes one data service.
type Config struct {
	Name   string `mapstructure:"name"`
	Label  string `mapstructure:"label"`
	Driver string `mapstructure:"driver"` // sqlsrv, pgsql or mysql
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
}

// Service is a registered data service.
type Service struct {
	Name    string
	Label   string
	Dialect schema.Dialect
	DB      *sql.DB
	Cache   *schema.Cache
}

// Registry manages named data services.
type Registry struct {
	services map[string]*Service
	logger   *zap.Logger
	open     func(driver, dsn string) (*sql.DB, error)
	mu       sync.RWMutex
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		services: make(map[string]*Service),
		logger:   logger,
		open:     sql.Open,
	}
}

// Add connects to the service database, loads its schema and registers it.
func (r *Registry) Add(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Name == "" {
		return nil, ErrInvalidName
	}
	d, err := schema.LookupDialect(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("service %q: %w", cfg.Name, err)
	}

	r.mu.RLock()
	_, exists := r.services[cfg.Name]
	r.mu.RUnlock()
	if exists {
		return nil, ErrServiceAlreadyExists
	}

	db, err := r.open(d.SQLDriver(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("service %q: open: %w", cfg.Name, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("service %q: ping: %w", cfg.Name, err)
	}

	svc, err := r.register(ctx, cfg, d, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return svc, nil
}

// AddDB registers a service over an already opened database.
func (r *Registry) AddDB(ctx context.Context, cfg Config, d schema.Dialect, db *sql.DB) (*Service, error) {
	if cfg.Name == "" {
		return nil, ErrInvalidName
	}
	return r.register(ctx, cfg, d, db)
}

func (r *Registry) register(ctx context.Context, cfg Config, d schema.Dialect, db *sql.DB) (*Service, error) {
	svc := &Service{
		Name:    cfg.Name,
		Label:   cmp.Or(cfg.Label, cfg.Name),
		Dialect: d,
		DB:      db,
		Cache:   schema.NewCache(cfg.Name, schema.NewSQLLoader(db, d, cfg.Schema), r.logger),
	}
	if err := svc.Cache.Reload(ctx); err != nil {
		return nil, fmt.Errorf("service %q: %w", cfg.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[cfg.Name]; ok {
		return nil, ErrServiceAlreadyExists
	}
	r.services[cfg.Name] = svc
	r.logger.Info("service registered",
		zap.String("service", svc.Name),
		zap.String("driver", d.Driver()),
		zap.Int("tables", len(svc.Cache.Snapshot())))
	return svc, nil
}

// Get returns a service by name.
func (r *Registry) Get(name string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return svc, nil
}

// Remove closes and unregisters a service.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[name]
	if !ok {
		return ErrServiceNotFound
	}
	delete(r.services, name)
	return svc.DB.Close()
}

// List returns the service names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.services))
}

// Caches returns the schema caches of all services, ordered by service name.
func (r *Registry) Caches() []*schema.Cache {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.Cache, 0, len(r.services))
	for _, name := range slices.Sorted(maps.Keys(r.services)) {
		out = append(out, r.services[name].Cache)
	}
	return out
}

// Close closes all service databases.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, svc := range r.services {
		if err := svc.DB.Close(); err != nil {
			r.logger.Warn("closing service", zap.String("service", name), zap.Error(err))
		}
	}
	r.services = make(map[string]*Service)
}
