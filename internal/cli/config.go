package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sysroot-txn/internal/adapters"
	"sysroot-txn/internal/app"
	"sysroot-txn/internal/ports"
)

// serviceConfig collects the service settings from flags, environment
// and config file, in viper's order of precedence.
func serviceConfig() app.Config {
	return app.Config{
		SysrootDir:      viper.GetString("sysroot"),
		OSName:          viper.GetString("os_name"),
		StorePath:       viper.GetString("store_path"),
		Remotes:         viper.GetStringMapString("remotes"),
		ReposDir:        viper.GetString("repos_dir"),
		RepoCacheDir:    viper.GetString("repo_cache_dir"),
		RepoCacheMaxAge: viper.GetDuration("repo_cache_max_age"),
		RebootCommand:   viper.GetStringSlice("reboot_command"),
		MetricsTextfile: viper.GetString("metrics_textfile"),
	}
}

func newAppService() (*app.Service, error) {
	return app.NewService(serviceConfig())
}

type transactionFunc func(ctx context.Context, service *app.Service, sink ports.ProgressSink) (app.Result, error)

// runTransaction opens the service for a single command and streams
// progress to the command's output.
func runTransaction(cmd *cobra.Command, fn transactionFunc) (app.Result, error) {
	service, err := newAppService()
	if err != nil {
		return app.Result{}, err
	}
	defer service.Close()
	return fn(cmd.Context(), service, adapters.NewWriterSink(cmd.OutOrStdout()))
}

func resolveStrings(cmd *cobra.Command, values []string, key string, flagName string) []string {
	if cmd == nil {
		if len(values) > 0 {
			return values
		}
		return viper.GetStringSlice(key)
	}
	if flagChanged(cmd, flagName) {
		return values
	}
	return viper.GetStringSlice(key)
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetBool(key)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || strings.TrimSpace(name) == "" {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.Changed
	}
	if flag := cmd.PersistentFlags().Lookup(name); flag != nil {
		return flag.Changed
	}
	return false
}
