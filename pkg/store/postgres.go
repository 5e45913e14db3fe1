package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/util"
)

const DefaultSchema = "sqlgate"

const scriptColumns = "name, content, engine_type, config, is_active, created_date, last_modified_date"

var migrations = []string{
	`CREATE SCHEMA IF NOT EXISTS %[1]s`,
	`CREATE TABLE IF NOT EXISTS %[1]s.event_script (
		name text PRIMARY KEY,
		content text NOT NULL DEFAULT '',
		engine_type text NOT NULL DEFAULT '',
		config jsonb NOT NULL DEFAULT '{}',
		is_active boolean NOT NULL DEFAULT true,
		created_date timestamptz NOT NULL DEFAULT now(),
		last_modified_date timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.app (
		id serial PRIMARY KEY,
		name text NOT NULL UNIQUE,
		description text NOT NULL DEFAULT '',
		type integer NOT NULL DEFAULT 0,
		launch_url text NOT NULL DEFAULT '',
		is_active boolean NOT NULL DEFAULT false,
		role_id integer,
		allow_fullscreen_toggle boolean NOT NULL DEFAULT true,
		requires_fullscreen boolean NOT NULL DEFAULT false,
		toggle_location text NOT NULL DEFAULT 'top'
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.app_group (
		id serial PRIMARY KEY,
		name text NOT NULL UNIQUE,
		description text NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.app_to_app_group (
		app_id integer NOT NULL REFERENCES %[1]s.app(id) ON DELETE CASCADE,
		group_id integer NOT NULL REFERENCES %[1]s.app_group(id) ON DELETE CASCADE,
		PRIMARY KEY (app_id, group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.user_to_app_to_role (
		user_id integer NOT NULL,
		app_id integer NOT NULL REFERENCES %[1]s.app(id) ON DELETE CASCADE,
		role_id integer NOT NULL,
		PRIMARY KEY (user_id, app_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.service (
		id serial PRIMARY KEY,
		name text NOT NULL UNIQUE,
		label text NOT NULL DEFAULT '',
		type text NOT NULL,
		is_active boolean NOT NULL DEFAULT true,
		config jsonb NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.system_config (
		default_app_id integer REFERENCES %[1]s.app(id) ON DELETE SET NULL
	)`,
}

// Postgres is a Store backed by a PostgreSQL system database.
type Postgres struct {
	conn   Conn
	schema string
	close  func()
}

var _ Store = (*Postgres)(nil)

// NewPostgres uses conn for all queries against tables in schema.
func NewPostgres(conn Conn, schema string) *Postgres {
	return &Postgres{conn: conn, schema: cmp.Or(schema, DefaultSchema), close: func() {}}
}

// ConnectPostgres opens a pool on connString, retrying the first ping with
// exponential backoff for up to maxWait.
func ConnectPostgres(ctx context.Context, connString, schema string, maxWait time.Duration, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait
	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.Warn("system database not ready", zap.Error(err), zap.Duration("retry_in", next))
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping connection: %w", err)
	}

	p := NewPostgres(pool, schema)
	p.close = pool.Close
	return p, nil
}

// Migrate creates the system tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	ident := pgx.Identifier{p.schema}.Sanitize()
	for _, m := range migrations {
		if _, err := p.conn.Exec(ctx, fmt.Sprintf(m, ident)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() { p.close() }

func (p *Postgres) table(name string) string {
	return pgx.Identifier{p.schema, name}.Sanitize()
}

func scanScript(row pgx.CollectableRow) (event.Script, error) {
	var s event.Script
	err := row.Scan(&s.Name, &s.Content, &s.EngineType, &s.Config, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (p *Postgres) FindScript(ctx context.Context, name string) (event.Script, bool, error) {
	s, err := p.GetScript(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return event.Script{}, false, nil
	}
	if err != nil {
		return event.Script{}, false, err
	}
	return s, true, nil
}

func (p *Postgres) ListScripts(ctx context.Context) ([]event.Script, error) {
	rows, err := p.conn.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY name", scriptColumns, p.table("event_script")))
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return pgx.CollectRows(rows, scanScript)
}

func (p *Postgres) GetScript(ctx context.Context, name string) (event.Script, error) {
	rows, err := p.conn.Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE name = $1 LIMIT 1", scriptColumns, p.table("event_script")), name)
	if err != nil {
		return event.Script{}, fmt.Errorf("get script %q: %w", name, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanScript)
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Script{}, ErrNotFound
	}
	return s, err
}

func scriptRow(s event.Script) map[string]any {
	return map[string]any{
		"name":        s.Name,
		"content":     s.Content,
		"engine_type": s.EngineType,
		"config":      util.Clean(s.Config),
		"is_active":   s.IsActive,
	}
}

func (p *Postgres) CreateScript(ctx context.Context, s event.Script) (event.Script, error) {
	if s.Name == "" {
		return event.Script{}, ErrInvalidName
	}
	qb := newQueryBuilder(p.schema, "event_script")
	rows, err := p.conn.Query(ctx, qb.insertSQL(scriptRow(s), scriptColumns), qb.values...)
	if err != nil {
		return event.Script{}, fmt.Errorf("create script: %w", err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanScript)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return event.Script{}, ErrAlreadyExists
	}
	return created, err
}

func (p *Postgres) UpdateScript(ctx context.Context, s event.Script) (event.Script, error) {
	data := scriptRow(s)
	delete(data, "name")
	data["last_modified_date"] = time.Now().UTC()

	qb := newQueryBuilder(p.schema, "event_script")
	q, err := qb.updateSQL(data, map[string]any{"name": s.Name}, scriptColumns)
	if err != nil {
		return event.Script{}, err
	}
	rows, err := p.conn.Query(ctx, q, qb.values...)
	if err != nil {
		return event.Script{}, fmt.Errorf("update script: %w", err)
	}
	updated, err := pgx.CollectExactlyOneRow(rows, scanScript)
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Script{}, ErrNotFound
	}
	return updated, err
}

func (p *Postgres) DeleteScript(ctx context.Context, name string) error {
	n, err := deleteRows(ctx, p.conn, p.schema, "event_script", map[string]any{"name": name})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Apps(ctx context.Context) ([]App, error) {
	rows, err := p.conn.Query(ctx, fmt.Sprintf(`SELECT id, name, description, type, launch_url, is_active, role_id,
		allow_fullscreen_toggle, requires_fullscreen, toggle_location FROM %s ORDER BY id`, p.table("app")))
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (App, error) {
		var a App
		err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Type, &a.LaunchURL, &a.IsActive, &a.RoleID,
			&a.AllowFullscreenToggle, &a.RequiresFullscreen, &a.ToggleLocation)
		return a, err
	})
}

func (p *Postgres) AppGroups(ctx context.Context) ([]AppGroup, error) {
	rows, err := p.conn.Query(ctx, fmt.Sprintf(`SELECT g.id, g.name, g.description,
		COALESCE(array_agg(m.app_id ORDER BY m.app_id) FILTER (WHERE m.app_id IS NOT NULL), '{}')
		FROM %s g LEFT JOIN %s m ON m.group_id = g.id
		GROUP BY g.id, g.name, g.description ORDER BY g.id`, p.table("app_group"), p.table("app_to_app_group")))
	if err != nil {
		return nil, fmt.Errorf("list app groups: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AppGroup, error) {
		var g AppGroup
		err := row.Scan(&g.ID, &g.Name, &g.Description, &g.AppIDs)
		return g, err
	})
}

func (p *Postgres) UserAppRoles(ctx context.Context, userID int) ([]UserAppRole, error) {
	rows, err := p.conn.Query(ctx,
		fmt.Sprintf("SELECT user_id, app_id, role_id FROM %s WHERE user_id = $1", p.table("user_to_app_to_role")), userID)
	if err != nil {
		return nil, fmt.Errorf("list user app roles: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[UserAppRole])
}

func (p *Postgres) Services(ctx context.Context) ([]Service, error) {
	rows, err := p.conn.Query(ctx,
		fmt.Sprintf("SELECT id, name, label, type, is_active, config FROM %s ORDER BY id", p.table("service")))
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Service])
}

func (p *Postgres) DefaultAppID(ctx context.Context) (*int, error) {
	var id *int
	err := p.conn.QueryRow(ctx, fmt.Sprintf("SELECT default_app_id FROM %s LIMIT 1", p.table("system_config"))).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("system config: %w", err)
	}
	return id, nil
}
