package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/gate"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "save [content]",
		Short: "Propose a memory to the write gate",
		Long:  "Propose a memory. Content can be a positional arg or piped via stdin. Accepted writes run in the background and are drained before exit. Rate-limit counters live in Redis when redis.addr is set and in the database otherwise, so limits carry over between invocations.",
		Run:   runSave,
	}

	cmd.Flags().String("type", "fact", "Type: fact, preference, decision, note, episode")
	cmd.Flags().Float64("confidence", 0.9, "Confidence in [0,1]")
	cmd.Flags().Float64("importance", 0.5, "Importance in [0,1]")
	cmd.Flags().String("conversation", "", "Source conversation id")
	cmd.Flags().String("message", "", "Source message id")
	cmd.Flags().String("supersedes", "", "Id of the active memory this one replaces")

	RootCmd.AddCommand(cmd)
}

type saveOutput struct {
	Action        gate.Action             `json:"action"`
	ItemID        string                  `json:"item_id,omitempty"`
	Content       string                  `json:"content,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	CorrelationID string                  `json:"correlation_id,omitempty"`
	Events        []model.WriteAuditEvent `json:"events,omitempty"`
	Abandoned     int                     `json:"abandoned,omitempty"`
}

func runSave(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	importance, _ := cmd.Flags().GetFloat64("importance")
	conversation, _ := cmd.Flags().GetString("conversation")
	message, _ := cmd.Flags().GetString("message")
	supersedes, _ := cmd.Flags().GetString("supersedes")

	content := strings.TrimSpace(readContent(args))
	if content == "" {
		exitErr("save", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	svc, logger := openService(cmd.Context())
	d := svc.DecideSave(cmd.Context(), gate.SaveRequest{
		UserID:         getUser(),
		Content:        content,
		Type:           model.MemoryType(typ),
		Confidence:     confidence,
		Importance:     importance,
		ConversationID: conversation,
		MessageID:      message,
		Supersedes:     supersedes,
	})

	out := saveOutput{
		Action:        d.Action,
		ItemID:        d.ItemID,
		Content:       d.Content,
		Reason:        d.Reason,
		CorrelationID: d.CorrelationID,
	}
	if d.Handle != nil {
		if err := d.Handle.Wait(cmd.Context()); err != nil {
			out.Reason = err.Error()
		}
		out.Events, _ = svc.Store().ListAudit(cmd.Context(), store.AuditParams{CorrelationID: d.CorrelationID})
	}
	out.Abandoned = shutdown(svc, logger)
	printJSON(out)
}
