package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/gate"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget [query]",
		Short: "Find memories to delete, or delete them with --confirm",
		Args:  cobra.MinimumNArgs(1),
		Run:   runForget,
	}

	cmd.Flags().Bool("confirm", false, "Soft-delete the matched memories")

	RootCmd.AddCommand(cmd)
}

type forgetOutput struct {
	Action        gate.Action        `json:"action"`
	Candidates    []model.MemoryItem `json:"candidates,omitempty"`
	DeletedIDs    []string           `json:"deleted_ids,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Abandoned     int                `json:"abandoned,omitempty"`
}

func runForget(cmd *cobra.Command, args []string) {
	confirm, _ := cmd.Flags().GetBool("confirm")
	query := strings.Join(args, " ")

	svc, logger := openService(cmd.Context())
	d := svc.DecideDelete(cmd.Context(), getUser(), query, confirm)

	out := forgetOutput{
		Action:        d.Action,
		Candidates:    d.Candidates,
		DeletedIDs:    d.DeletedIDs,
		Reason:        d.Reason,
		CorrelationID: d.CorrelationID,
	}
	if d.Handle != nil {
		if err := d.Handle.Wait(cmd.Context()); err != nil {
			out.Reason = err.Error()
		}
	}
	out.Abandoned = shutdown(svc, logger)
	printJSON(out)
}
