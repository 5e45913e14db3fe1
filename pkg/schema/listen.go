package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Following PostgREST's notification convention
// https://docs.postgrest.org/en/stable/references/schema_cache.html
const (
	ReloadChannel = "sqlgate"
	ReloadPayload = "reload schema"
)

// Listen reloads the cache whenever `NOTIFY sqlgate, 'reload schema'` is sent
// on the database behind conn. It blocks until ctx is done and owns conn for
// that time.
func (c *Cache) Listen(ctx context.Context, conn *pgx.Conn) error {
	if _, err := conn.Exec(ctx, "LISTEN "+ReloadChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		if n.Payload != ReloadPayload {
			continue
		}
		if err := c.Reload(ctx); err != nil {
			c.logger.Error("schema reload failed", zap.String("service", c.service), zap.Error(err))
		}
	}
}
