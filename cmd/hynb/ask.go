package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aicell-lab/hypha-agents-sub001/internal/agent"
	"github.com/aicell-lab/hypha-agents-sub001/internal/notebook"
)

var askNotebook string

func init() {
	askCmd.Flags().StringVarP(&askNotebook, "notebook", "n", "", "notebook file to continue and save the conversation into")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Let the agent answer by writing and running notebook cells",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}

		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		mgr, err := newManager(cfg)
		if err != nil {
			return err
		}

		if askNotebook != "" {
			doc, err := notebook.ReadFile(askNotebook)
			if err != nil {
				return err
			}
			mgr.LoadDocument(doc)
		}

		ctx := cmd.Context()
		if err := mgr.ConnectKernel(ctx); err != nil {
			return err
		}
		defer mgr.ShutdownKernel(context.Background())

		loop := &agent.Loop{
			Client:   agent.NewAnthropicClient(cfg.Model),
			Notebook: mgr,
			MaxTurns: cfg.MaxTurns,
		}

		result, err := loop.Run(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		fmt.Println(result.Content)

		if askNotebook != "" {
			if err := notebook.WriteFile(askNotebook, mgr.Document()); err != nil {
				return err
			}
		}
		return nil
	},
}
