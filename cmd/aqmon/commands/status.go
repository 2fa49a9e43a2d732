package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusLimit int

// statusCmd prints the recent checkpoint history.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent collection checkpoints",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of checkpoints to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	checkpoints, err := a.ledger.Recent(cmd.Context(), statusLimit)
	if err != nil {
		return fmt.Errorf("read checkpoints: %w", err)
	}

	if len(checkpoints) == 0 {
		fmt.Println("no checkpoints recorded yet")
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(checkpoints)
}
