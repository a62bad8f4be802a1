package cli

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"

	"sysroot-txn/internal/app"
	"sysroot-txn/internal/core"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the deployments in boot order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := readStatus(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, deployment := range status.Deployments {
				marker := " "
				if status.IsBooted(deployment) {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s %s %s\n", marker, deployment.OSName, deployment.Origin.Refspec.String(), core.ShortChecksum(deployment.Checksum))
				if layered := deployment.Layering.LayeredPackages; len(layered) > 0 {
					fmt.Fprintf(out, "    LayeredPackages: %s\n", strings.Join(layered, " "))
				}
				if len(deployment.Origin.Overrides) > 0 {
					keys := make([]string, 0, len(deployment.Origin.Overrides))
					for _, override := range deployment.Origin.Overrides {
						keys = append(keys, override.Key())
					}
					fmt.Fprintf(out, "    Overrides: %s\n", strings.Join(keys, " "))
				}
			}
			return nil
		},
	}
}

func readStatus(cmd *cobra.Command) (app.Status, error) {
	service, err := newAppService()
	if err != nil {
		return app.Status{}, err
	}
	defer service.Close()
	return service.Status(cmd.Context(), "")
}

func errNoDeployment() error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg("no deployment found for the configured os")
}
