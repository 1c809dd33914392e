package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aicell-lab/hypha-agents-sub001/internal/cell"
	"github.com/aicell-lab/hypha-agents-sub001/internal/notebook"
)

var runSave bool

func init() {
	runCmd.Flags().BoolVar(&runSave, "save", true, "write execution results back to the notebook file")
}

var runCmd = &cobra.Command{
	Use:   "run <notebook.json>",
	Short: "Run every code cell top to bottom",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings()
		if err != nil {
			return err
		}

		doc, err := notebook.ReadFile(args[0])
		if err != nil {
			return err
		}

		mgr, err := newManager(cfg)
		if err != nil {
			return err
		}
		mgr.LoadDocument(doc)

		ctx := cmd.Context()
		if err := mgr.ConnectKernel(ctx); err != nil {
			return fmt.Errorf("kernel startup failed (retry with `hynb run` once the backend is reachable): %w", err)
		}
		defer mgr.ShutdownKernel(context.Background())

		results := mgr.RunAllCells(ctx)
		failed := 0
		for _, r := range results {
			status := "ok"
			if r.Failed {
				status = "FAILED"
				failed++
			}
			fmt.Printf("[%s] cell %s\n%s\n\n", status, r.CellID, r.Summary)
		}

		if runSave {
			if err := notebook.WriteFile(args[0], mgr.Document()); err != nil {
				return err
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d cells failed", failed, len(results))
		}
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec [code]",
	Short: "Execute one snippet in a fresh kernel",
	Long:  "Executes the given code (or stdin when piped) in a fresh kernel and prints the output.",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		code := strings.Join(args, " ")
		if code == "" {
			stat, _ := os.Stdin.Stat()
			if (stat.Mode() & os.ModeCharDevice) == 0 {
				data, err := io.ReadAll(bufio.NewReader(os.Stdin))
				if err != nil {
					return err
				}
				code = string(data)
			}
		}
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("no code given")
		}

		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		mgr, err := newManager(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := mgr.ConnectKernel(ctx); err != nil {
			return err
		}
		defer mgr.ShutdownKernel(context.Background())

		id := mgr.AddCell(cell.TypeCode, code, cell.RoleUser, notebook.AddOptions{})
		fmt.Println(mgr.ExecuteCell(ctx, id))

		c, _ := mgr.Cell(id)
		if c.ExecutionState == cell.StateError {
			os.Exit(1)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored notebooks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := notebook.NewStore()
		if err != nil {
			return err
		}
		notebooks, err := store.List()
		if err != nil {
			return err
		}
		if len(notebooks) == 0 {
			fmt.Println("no notebooks")
			return nil
		}
		for _, meta := range notebooks {
			title := meta.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s  %d cells  %s\n",
				meta.ID, title, meta.CellCount, meta.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}
