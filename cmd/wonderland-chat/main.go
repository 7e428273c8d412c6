package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gwi.com/wonderland-chat/internal/config"
)

var (
	appConfig    config.Config
	dotEnvLoaded bool
)

var rootCmd = &cobra.Command{
	Use:   "wonderland-chat",
	Short: "Chat with a general assistant or the Wonderland knowledge base",
	Long: "wonderland-chat keeps a local history of conversations and sends each " +
		"message either to a general completion API or to a RAG service.",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format for the server (console or json)")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("store-driver", "", "conversation store (sqlite, pebble or memory)")
	flags.String("database-url", "", "sqlite file or pebble directory")
	flags.String("locale", "", "interface language (es or en)")
	flags.String("provider", "", "general completion provider (openai or gemini)")

	for flag, key := range map[string]string{
		"log-level":    config.KeyLogLevel,
		"log-format":   config.KeyLogFormat,
		"log-file":     config.KeyLogFile,
		"store-driver": config.KeyStoreDriver,
		"database-url": config.KeyDatabaseURL,
		"locale":       config.KeyLocale,
		"provider":     config.KeyGeneralProvider,
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(serveCmd, chatCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	dotEnvLoaded = config.LoadDotEnv()
	v := viper.GetViper()
	config.SetDefaults(v)

	cfg, err := config.LoadConfig(v)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	appConfig = cfg
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
