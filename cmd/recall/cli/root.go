package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	jsonLogs   bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Conversational agent with long-term memory",
	Long: `Recall keeps every turn of every conversation, brings related past turns back
into the prompt by embedding similarity, and lets the model use tools by writing
/;TAG;/key/;value;/ commands in its replies.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; keys may come from the vault or the shell.
		_ = godotenv.Load()
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.recall/config.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON")
}

func loadConfig() (*config.File, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(config.DefaultHome(), "config.yaml")
	}
	return config.Load(path)
}

func newObserver(w io.Writer) *observe.Observer {
	if jsonLogs {
		return observe.NewJSON(w, verbose)
	}
	return observe.New(w, verbose)
}
