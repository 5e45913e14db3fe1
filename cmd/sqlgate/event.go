package sqlgate

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeflare/sqlgate/pkg/event"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event script helpers",
}

var eventNameCmd = &cobra.Command{
	Use:   "name <service> [resource] <method> <pre|post>",
	Short: "Print the lifecycle event name scripts are registered under",
	Example: `  sqlgate event name northwind customers get pre
  sqlgate event name northwind post post`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := eventName(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	},
}

func init() {
	eventCmd.AddCommand(eventNameCmd)
}

func eventName(args []string) (string, error) {
	service, resource := args[0], ""
	rest := args[1:]
	if len(args) == 4 {
		resource, rest = args[1], args[2:]
	}
	method, phase := rest[0], strings.ToLower(rest[1])

	var p event.Point
	switch {
	case phase == "pre" && resource == "":
		p = event.ServicePreProcess
	case phase == "post" && resource == "":
		p = event.ServicePostProcess
	case phase == "pre":
		p = event.ResourcePreProcess
	case phase == "post":
		p = event.ResourcePostProcess
	default:
		return "", fmt.Errorf("phase must be pre or post, got %q", rest[1])
	}
	return event.Name(p, service, resource, method), nil
}
