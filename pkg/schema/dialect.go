package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Driver tags used in service configuration.
const (
	DriverSQLServer = "sqlsrv"
	DriverPostgres  = "pgsql"
	DriverMySQL     = "mysql"
)

var ErrUnknownDialect = errors.New("unknown dialect")

// Op is the kind of data-modifying statement a dialect renders clauses for.
type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

// Dialect holds the per-vendor rules for type and default extraction and
// SQL rendering. Implementations are stateless and safe for concurrent use.
type Dialect interface {
	// Driver returns the driver tag the dialect is registered under.
	Driver() string
	// SQLDriver returns the database/sql driver name.
	SQLDriver() string
	// ExtractType maps a raw vendor type to a logical type. It never fails;
	// unknown types become TypeString.
	ExtractType(dbType string, limits Limits) LogicalType
	// ExtractLimit parses size, precision and scale from the type string.
	ExtractLimit(dbType string) Limits
	// ExtractDefault unwraps a vendor default literal and normalizes it to t.
	ExtractDefault(t LogicalType, raw string) any
	// Typecast converts v for parameter binding against a column of type t.
	Typecast(t LogicalType, v any) any
	// SelectExpression renders the aliased select fragment for c.
	SelectExpression(c Column, quoted bool) string
	// Quote quotes an identifier.
	Quote(name string) string
	// Placeholder returns the bind placeholder for the n-th (1-based) argument.
	Placeholder(n int) string
	// LimitOffset renders the paging clause. ordered reports whether the
	// statement already has an ORDER BY.
	LimitOffset(limit, offset int, ordered bool) string
	// Returning renders the clauses that return affected rows: output goes
	// before VALUES/WHERE, returning at the end of the statement.
	Returning(op Op) (output, returning string)
	// DefaultSchema is used when a service does not configure one.
	DefaultSchema() string
}

var (
	dialects   = map[string]Dialect{}
	dialectsMu sync.RWMutex
)

// RegisterDialect makes d available under its driver tag.
func RegisterDialect(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[d.Driver()] = d
}

// LookupDialect returns the dialect registered for the driver tag.
func LookupDialect(driver string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, driver)
	}
	return d, nil
}

// Drivers lists registered driver tags in sorted order.
func Drivers() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	out := make([]string, 0, len(dialects))
	for k := range dialects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterDialect(SQLServer{})
	RegisterDialect(Postgres{})
	RegisterDialect(MySQL{})
}
