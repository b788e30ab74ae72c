package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-go-golems/glazed/pkg/cli"
	cmd_middlewares "github.com/go-go-golems/glazed/pkg/cmds/middlewares"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/aira/pkg/settings"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "aira",
	Short:         "aira is a terminal client for AIRA, the Amazon preservation assistant",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		return initLogger(false)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("print-settings") {
			return printSettings(cmd.OutOrStdout())
		}
		return runChat(cmd, args)
	},
}

func initConfig() error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	viper.SetEnvPrefix("aira")

	if configPath := viper.GetString("config"); configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.aira")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(xdgConfigPath, "aira"))
		}
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return errors.Wrap(err, "could not read config file")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
	// Quiet keeps logs off the terminal, used while the TUI owns the screen.
	Quiet bool
}

func initLogger(quiet bool) error {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}

	return InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
		Quiet:      quiet,
	})
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func InitLogger(config *logConfig) error {
	logger := zerolog.New(os.Stderr).With().Timestamp()
	if config.WithCaller {
		logger = logger.Caller()
	}

	format := config.LogFormat
	if format == "" {
		format = "json"
		if isTerminal(os.Stderr) {
			format = "text"
		}
	}

	var writers []io.Writer
	if !config.Quiet {
		switch format {
		case "text":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
		case "json":
			writers = append(writers, os.Stderr)
		default:
			return errors.Errorf("unknown log format %q", format)
		}
	}
	if config.LogFile != "" {
		writers = append(writers, zerolog.ConsoleWriter{
			NoColor: true,
			Out: &lumberjack.Logger{
				Filename:   config.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, //days
				Compress:   false,
			},
		})
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}
	log.Logger = logger.Logger().Output(out)

	level := zerolog.InfoLevel
	if config.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", config.Level)
		}
	}
	zerolog.SetGlobalLevel(level)

	return nil
}

func printSettings(w io.Writer) error {
	s, err := settings.Load(viper.GetViper())
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "could not encode settings")
	}
	return enc.Close()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to the configuration file")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, json); text on a terminal by default")
	pf.String("log-file", "", "Also write logs to this file")
	pf.Bool("with-caller", false, "Log caller information")
	pf.BoolP("verbose", "v", false, "Verbose output")
	settings.AddFlags(pf)
	rootCmd.Flags().Bool("print-settings", false, "Print the resolved settings as YAML and exit")

	cobra.CheckErr(viper.BindPFlags(pf))
	cobra.CheckErr(viper.BindPFlag("print-settings", rootCmd.Flags().Lookup("print-settings")))

	addChatFlags(rootCmd)

	askCmd, err := NewAskCommand()
	cobra.CheckErr(err)
	askCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(askCmd,
		cli.WithCobraMiddlewaresFunc(getMiddlewares),
	)
	cobra.CheckErr(err)

	alertsCmd, err := NewAlertsCommand()
	cobra.CheckErr(err)
	alertsCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(alertsCmd,
		cli.WithCobraMiddlewaresFunc(getMiddlewares),
	)
	cobra.CheckErr(err)

	rootCmd.AddCommand(
		newChatCommand(),
		askCobraCmd,
		alertsCobraCmd,
		newHealthCommand(),
		newWhoamiCommand(),
		newDevServerCommand(),
	)
}

func getMiddlewares(
	_ *cli.GlazedCommandSettings,
	cmd *cobra.Command,
	args []string,
) ([]cmd_middlewares.Middleware, error) {
	return []cmd_middlewares.Middleware{
		cmd_middlewares.ParseFromCobraCommand(cmd),
		cmd_middlewares.GatherArguments(args),
		cmd_middlewares.GatherSpecificFlagsFromViper(
			[]string{"dias"},
			parameters.WithParseStepSource("viper"),
		),
		cmd_middlewares.SetFromDefaults(),
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
