package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the user's memories and audit trail as JSON",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, _ := openStore()
	defer s.Close()

	exp, err := s.ExportUser(cmd.Context(), getUser())
	if err != nil {
		exitErr("export", err)
	}
	printJSON(exp)
}
