package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prdgen/config"
	"prdgen/internal/adapter/store"
	"prdgen/internal/usecase"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress for the repository",
	Long: `Show which analysis stages have completed for the repository, plus the
recorded model call count. A completed stage is skipped when analyze runs
again.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := GetRootDir()

	dbPath := config.StateDBPath(path)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("No analysis state found. Run: prdgen analyze .")
		return nil
	}

	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	statuses, err := usecase.Status(st)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	fmt.Printf("Pipeline status for %s:\n", path)
	for _, s := range statuses {
		mark := " "
		if s.Complete {
			mark = "x"
		}
		line := fmt.Sprintf("  [%s] %s", mark, s.Stage)
		if s.Detail != "" {
			line += " (" + s.Detail + ")"
		}
		fmt.Println(line)
	}

	records, err := st.CallRecords()
	if err != nil {
		return fmt.Errorf("failed to read call log: %w", err)
	}
	fmt.Printf("\nModel calls recorded: %d\n", len(records))
	return nil
}
