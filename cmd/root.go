package cmd

import (
	"os"
	"time"

	coreconfig "github.com/AzielCF/az-chat/core/config"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	flagPort    string
	flagDebug   bool
	flagAPIURL  string
	flagSockURL string
	flagUserID  string
	flagToken   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-chat",
	Short: "Realtime conversation engine",
	Long: `az-chat drives a realtime conversation session against the chat
backend: live channel with reconnect, presence tracking, typing
coordination and a recency-sorted conversation cache.`,
}

func init() {
	// .env is optional; real deployments use environment variables
	_ = godotenv.Load()

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initApp)
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&flagPort,
		"port", "p",
		"",
		"change status server port with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&flagDebug,
		"debug", "d",
		false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagAPIURL,
		"api-url", "",
		"",
		`conversation backend base url --api-url <string> | example: --api-url="http://localhost:8080/api"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagSockURL,
		"socket-url", "",
		"",
		`realtime channel url --socket-url <string> | example: --socket-url="ws://localhost:8080/socket"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagUserID,
		"user", "u",
		"",
		"session user id --user <string>",
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagToken,
		"token", "t",
		"",
		"session bearer token --token <string>",
	)
}

func initApp() {
	viper.AutomaticEnv()

	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	// Flags win over environment
	if flagPort != "" {
		cfg.App.Port = flagPort
	}
	if flagDebug {
		cfg.App.Debug = true
	}
	if flagAPIURL != "" {
		cfg.Backend.BaseURL = flagAPIURL
	}
	if flagSockURL != "" {
		cfg.Backend.SocketURL = flagSockURL
	}
	if flagUserID != "" {
		cfg.Session.UserID = flagUserID
	}
	if flagToken != "" {
		cfg.Session.Token = flagToken
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
