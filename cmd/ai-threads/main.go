package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/ai-threads/pkg/settings"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "ai-threads",
	Short: "ai-threads keeps threaded conversations with Bedrock and OpenAI models",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger now that the command line flags are parsed
		initLogger()
	},
	SilenceUsage: true,
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() {
	err := InitLogger(&logConfig{
		Level:      viper.GetString("log-level"),
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}

	var logWriter io.Writer
	switch config.LogFormat {
	case "json":
		logWriter = os.Stderr
	case "text":
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		fd := os.Stderr.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
		} else {
			logWriter = os.Stderr
		}
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	return nil
}

func initViper(rootCmd *cobra.Command) error {
	viper.SetEnvPrefix("ai_threads")

	configPath := viper.GetString("config")
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.ai-threads")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/ai-threads")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// no config file, flags and environment only
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	settings.SetDefaults(viper.GetViper())

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func init() {
	d := settings.New()
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the config file")
	flags.String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "auto", "Log format (auto, text, json)")
	flags.String("log-file", "", "Also write logs to this file")
	flags.Bool("with-caller", false, "Log the caller of each log line")
	flags.String("region", d.Region, "AWS region used for Bedrock and Secrets Manager")
	flags.String("secret-id", d.SecretID, "Secrets Manager secret holding provider API keys")
	flags.String("db", d.DB, "Path of the thread database")
	flags.String("store-key", d.StoreKey, "Key the threads are stored under")
	flags.String("openai-base-url", "", "Base URL of an OpenAI compatible endpoint")
	flags.Duration("request-timeout", 0, "Bound on credential resolution and stream setup (0 disables)")
	flags.Duration("naming-timeout", d.NamingTimeout, "Timeout of the thread naming request")
	cobra.CheckErr(viper.BindPFlags(flags))

	rootCmd.AddCommand(
		newChatCommand(),
		newThreadsCommand(),
		newModelsCommand(),
		newCostCommand(),
		newExportCommand(),
		newTokensCommand(),
		newPrefsCommand(),
	)
}

func main() {
	cobra.OnInitialize(func() {
		cobra.CheckErr(initViper(rootCmd))
	})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
