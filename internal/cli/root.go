package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "SYSROOT_TXN"

type RootConfig struct {
	ConfigFile      string
	LogLevel        string
	Sysroot         string
	OSName          string
	StorePath       string
	ReposDir        string
	RepoCacheDir    string
	MetricsTextfile string
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", errorMessage(err))
		stop()
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "sysroot-txn",
		Short:         "Transactional updates for image-based operating systems",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	flags.StringVar(&cfg.Sysroot, "sysroot", "", "System root directory")
	flags.StringVar(&cfg.OSName, "os", "", "Operate on the deployments of this OS")
	flags.StringVar(&cfg.StorePath, "store", "", "Content store path")
	flags.StringVar(&cfg.ReposDir, "repos-dir", "", "Repository definitions directory")
	flags.StringVar(&cfg.RepoCacheDir, "repo-cache-dir", "", "Repository metadata cache directory")
	flags.StringVar(&cfg.MetricsTextfile, "metrics-textfile", "", "Write transaction metrics to this file")
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("sysroot", flags.Lookup("sysroot"))
	_ = viper.BindPFlag("os_name", flags.Lookup("os"))
	_ = viper.BindPFlag("store_path", flags.Lookup("store"))
	_ = viper.BindPFlag("repos_dir", flags.Lookup("repos-dir"))
	_ = viper.BindPFlag("repo_cache_dir", flags.Lookup("repo-cache-dir"))
	_ = viper.BindPFlag("metrics_textfile", flags.Lookup("metrics-textfile"))

	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newUpgradeCommand())
	cmd.AddCommand(newRebaseCommand())
	cmd.AddCommand(newDeployCommand())
	cmd.AddCommand(newInstallCommand())
	cmd.AddCommand(newUninstallCommand())
	cmd.AddCommand(newOverrideCommand())
	cmd.AddCommand(newRollbackCommand())
	cmd.AddCommand(newCleanupCommand())
	cmd.AddCommand(newRefreshMetadataCommand())
	cmd.AddCommand(newKargsCommand())
	cmd.AddCommand(newInitramfsCommand())
	cmd.AddCommand(newDiffCommand())
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetDefault("sysroot", "/sysroot")
	viper.SetDefault("store_path", "/sysroot/content.db")
	viper.SetDefault("repos_dir", "/etc/sysroot-txn/repos.d")
	viper.SetDefault("repo_cache_dir", "/var/cache/sysroot-txn/repomd")
	viper.SetDefault("repo_cache_max_age", "1h")
	viper.SetDefault("reboot_command", []string{"systemctl", "reboot"})

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("sysroot-txn")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/sysroot-txn")
	viper.AddConfigPath("$HOME/.config/sysroot-txn")
	if err := viper.ReadInConfig(); err != nil {
		return nil
	}
	return nil
}

// setupLogging writes logs to stderr; stdout carries transaction progress.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func exitCodeForError(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	switch errbuilder.CodeOf(err) {
	case errbuilder.CodeInvalidArgument:
		return 2
	case errbuilder.CodeAlreadyExists, errbuilder.CodePermissionDenied:
		return 3
	case errbuilder.CodeFailedPrecondition:
		return 4
	case errbuilder.CodeNotFound, errbuilder.CodeInternal:
		return 5
	default:
		return 1
	}
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
