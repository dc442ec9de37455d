package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "crookedcart",
	Short: "Deliberately vulnerable web shop with a challenge detection engine",
	Long: `Crooked Cart - Vulnerable Web Shop

A training shop riddled with intentional vulnerabilities. A detection
engine watches the traffic and data for exploitation artifacts and
tracks which challenges have been solved.

Example:
  crookedcart serve --port 3000
  crookedcart serve --config config.yaml
`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default is .crookedcart.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".crookedcart")
	}

	viper.SetEnvPrefix("CROOKEDCART")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, config file and environment into one
// Config.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
