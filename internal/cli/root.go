package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pratik-mahalle/farmlink/pkg/client"
)

var (
	cfgFile      string
	outputFormat string
	serverURL    string
	apiClient    *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "farmlink",
	Short: "farmlink CLI - manage farm-data provider connections",
	Long: `farmlink CLI provides command-line access to the farmlink connection service:
connect John Deere, FieldView and other farm-data providers, check which data
sources are reachable, and fetch provider data the way the assistant does.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipsClient(cmd) {
			return nil
		}
		return initAuthenticatedClient()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// skipsClient reports whether cmd runs without talking to the server
func skipsClient(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["offline"] == "true" || c.Name() == "help" || c.Name() == "completion" {
			return true
		}
	}
	return false
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.farmlink/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (overrides config)")

	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newConnectionCmd())
	rootCmd.AddCommand(newProvidersCmd())
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".farmlink"), nil
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return
		}
		_ = os.MkdirAll(dir, 0o700)
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FARMLINK")
	viper.AutomaticEnv()

	viper.SetDefault("server_url", "http://localhost:8080")
	viper.SetDefault("output", "table")

	_ = viper.ReadInConfig()
}

func initAuthenticatedClient() error {
	token := viper.GetString("auth.token")
	if token == "" {
		return fmt.Errorf("not authenticated. Run 'farmlink auth token' first")
	}

	apiClient = client.NewClient(client.Config{
		BaseURL:   viper.GetString("server_url"),
		Token:     token,
		UserAgent: "farmlink-cli",
	})
	return nil
}

func getOutputFormat() string {
	if outputFormat != "" {
		return outputFormat
	}
	return viper.GetString("output")
}
