// Package cmd contains the CLI setup and commands exposed to the user
package cmd

import (
	"log"
	"log/slog"
	"os"

	"github.com/haal01/whiteboard/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ConfigFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "whiteboard",
	Short: "Real-time collaborative whiteboard server and headless client",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := config.InitConfig(ConfigFile); err != nil {
			return err
		}
		level := slog.LevelInfo
		if viper.GetBool("debug") {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		slog.Debug("using config file", "file", ConfigFile)
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err.Error())
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", config.DefaultFile(), "config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}
