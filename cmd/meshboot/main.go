package main

import (
	"errors"
	"fmt"
	"os"

	"meshnode"
	"meshnode/cmd/meshboot/ui"
	"meshnode/internal/buildinfo"
	"meshnode/internal/logging"
	"meshnode/platform"

	"github.com/spf13/cobra"
)

// Exit codes reported to the init system.
const (
	exitOK           = 0
	exitFailure      = 1
	exitConfig       = 2
	exitIdentity     = 3
	exitTimeout      = 4
	exitStageLaunch  = 5
	exitInterfaceErr = 6
)

type globalFlags struct {
	configPath string
	debug      bool
	logFormat  string
	noColor    bool
}

func main() {
	if err := logging.Configure(logging.LevelInfo, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(exitFailure)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func rootCmd() *cobra.Command {
	var (
		global globalFlags
		boot   bootFlags
	)

	root := &cobra.Command{
		Use:           "meshboot",
		Short:         "Boot a mesh node and start its services in order",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if global.debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level, global.logFormat); err != nil {
				return err
			}
			ui.ConfigureColor(global.noColor)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(cmd, global, boot)
		},
	}
	root.PersistentFlags().StringVar(&global.configPath, "config", platform.ConfigPath, "Boot config file")
	root.PersistentFlags().BoolVar(&global.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&global.logFormat, "log-format", logging.FormatText, "Log format (text or json)")
	root.PersistentFlags().BoolVar(&global.noColor, "no-color", false, "Disable colored output")
	boot.Bind(root)

	root.AddCommand(identityCmd(&global))
	root.AddCommand(planCmd(&global))
	root.AddCommand(waitBridgeCmd(&global))
	root.AddCommand(historyCmd(&global))
	return root
}

// exitCode maps a boot failure to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		configErr    *meshnode.ConfigurationError
		identityErr  *meshnode.IdentityError
		timeoutErr   *meshnode.ReadinessTimeoutError
		launchErr    *meshnode.StageLaunchError
		interfaceErr *meshnode.InterfaceQueryError
	)
	switch {
	case errors.As(err, &configErr):
		return exitConfig
	case errors.As(err, &identityErr):
		return exitIdentity
	case errors.As(err, &timeoutErr):
		return exitTimeout
	case errors.As(err, &launchErr):
		return exitStageLaunch
	case errors.As(err, &interfaceErr):
		return exitInterfaceErr
	default:
		return exitFailure
	}
}
