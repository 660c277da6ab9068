package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	cmd.Flags().Bool("all-users", false, "Count every user instead of --user")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	allUsers, _ := cmd.Flags().GetBool("all-users")

	s, path := openStore()
	defer s.Close()

	user := getUser()
	if allUsers {
		user = ""
	}
	stats, err := s.Stats(cmd.Context(), path, user)
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(stats)
}
