package sqlgate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/service"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <service>",
	Short: "Print the normalized schema of a data service",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	var sc *service.Config
	for i := range cfg.Services {
		if cfg.Services[i].Name == args[0] {
			sc = &cfg.Services[i]
			break
		}
	}
	if sc == nil {
		return fmt.Errorf("%w: %s", service.ErrServiceNotFound, args[0])
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	registry := service.NewRegistry(logger.With(zap.String("cmd", "schema")))
	defer registry.Close()
	svc, err := registry.Add(ctx, *sc)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(svc.Cache.Snapshot())
}
