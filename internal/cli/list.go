package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Run:   runList,
	}

	cmd.Flags().String("type", "", "Filter by type")
	cmd.Flags().String("status", "", "Filter by status (default active)")
	cmd.Flags().Bool("all", false, "Include every status")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("ids-only", false, "Only output ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	status, _ := cmd.Flags().GetString("status")
	all, _ := cmd.Flags().GetBool("all")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	s, _ := openStore()
	defer s.Close()

	items, err := s.ListItems(cmd.Context(), store.ListParams{
		UserID: getUser(),
		Type:   model.MemoryType(typ),
		Status: model.Status(status),
		All:    all,
		Limit:  limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, m := range items {
			fmt.Println(m.ID)
		}
		return
	}
	if len(items) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(items)
}
