package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aicell-lab/hypha-agents-sub001/internal/config"
	"github.com/aicell-lab/hypha-agents-sub001/internal/kernel"
	"github.com/aicell-lab/hypha-agents-sub001/internal/kernel/starlark"
	"github.com/aicell-lab/hypha-agents-sub001/internal/log"
	"github.com/aicell-lab/hypha-agents-sub001/internal/notebook"
)

var version = "0.1.0"

func init() {
	// Load .env file if it exists (silent fail if not found)
	_ = godotenv.Load()

	// Initialize logging (enabled via HYNB_DEBUG=1)
	_ = log.Init()
}

func main() {
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hynb",
	Short: "hynb - headless notebook execution engine",
	Long: `hynb runs AI-assisted notebooks without a UI: cells execute against a
kernel session, outputs stream back in order, and an agent can drive the
same notebook through the run_code boundary.

  hynb run notebook.json    Run every code cell top to bottom
  hynb exec "print(1+1)"    Execute one snippet in a fresh kernel
  hynb ask "question"       Let the agent answer by writing and running cells
  hynb list                 List stored notebooks`,
}

func init() {
	rootCmd.AddCommand(runCmd, execCmd, askCmd, listCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("hynb " + version)
	},
}

// loadSettings loads merged configuration.
func loadSettings() (*config.Settings, error) {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newManager builds a notebook manager wired to a kernel session for the
// configured backend.
func newManager(cfg *config.Settings) (*notebook.Manager, error) {
	var backend kernel.Backend
	switch cfg.KernelSpec {
	case "", "starlark":
		backend = starlark.New()
	default:
		return nil, fmt.Errorf("unknown kernel spec: %s", cfg.KernelSpec)
	}

	session := kernel.NewSession(backend, cfg.StartupTimeout())
	return notebook.NewManager(session, notebook.Options{
		ExecuteTimeout: cfg.ExecuteTimeout(),
		Connect: kernel.ConnectOptions{
			ServerURL:  cfg.ServerURL,
			KernelSpec: cfg.KernelSpec,
		},
	}), nil
}
