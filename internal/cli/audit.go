package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the write audit trail",
		Run:   runAudit,
	}

	cmd.Flags().String("correlation", "", "Filter by correlation id")
	cmd.Flags().String("memory", "", "Filter by memory id")
	cmd.Flags().IntP("limit", "l", 50, "Max results")

	RootCmd.AddCommand(cmd)
}

func runAudit(cmd *cobra.Command, args []string) {
	correlation, _ := cmd.Flags().GetString("correlation")
	memory, _ := cmd.Flags().GetString("memory")
	limit, _ := cmd.Flags().GetInt("limit")

	s, _ := openStore()
	defer s.Close()

	events, err := s.ListAudit(cmd.Context(), store.AuditParams{
		UserID:        getUser(),
		CorrelationID: correlation,
		MemoryID:      memory,
		Limit:         limit,
	})
	if err != nil {
		exitErr("audit", err)
	}

	if len(events) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(events)
}
