package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().Bool("history", false, "Follow the supersession chain forward to the current version")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	history, _ := cmd.Flags().GetBool("history")

	s, _ := openStore()
	defer s.Close()

	if history {
		chain, err := s.History(cmd.Context(), getUser(), args[0])
		if err != nil {
			exitErr("get", err)
		}
		printJSON(chain)
		return
	}

	item, err := s.GetItem(cmd.Context(), getUser(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	printJSON(item)
}
