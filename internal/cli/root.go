package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docwise",
	Short: "Docwise - document-grounded conversational QA service",
	Long: `Docwise answers questions about uploaded documents through a
three-stage pipeline (retrieval, summarization, verification) with
per-session document isolation and conversation memory.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.docwise/docwise.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// defaultConfigPath returns the config file location when --config is unset.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "docwise.json"
	}
	return filepath.Join(home, ".docwise", "docwise.json")
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}
