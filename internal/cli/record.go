package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record [content]",
		Short: "Record a conversation message",
		Long:  "Record a conversation message and run the episode check. Content can be a positional arg or piped via stdin.",
		Run:   runRecord,
	}

	cmd.Flags().String("conversation", "", "Conversation id (required)")
	cmd.Flags().String("role", "user", "Role: user or assistant")

	cmd.MarkFlagRequired("conversation")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	conversation, _ := cmd.Flags().GetString("conversation")
	role, _ := cmd.Flags().GetString("role")

	content := strings.TrimSpace(readContent(args))
	if content == "" {
		exitErr("record", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	svc, logger := openService(cmd.Context())
	msg := &model.Message{
		ConversationID: conversation,
		UserID:         getUser(),
		Role:           model.Role(role),
		Content:        content,
	}
	h, err := svc.RecordMessage(cmd.Context(), msg)
	if err != nil {
		shutdown(svc, logger)
		exitErr("record", err)
	}

	out := map[string]any{
		"id":                msg.ID,
		"conversation_id":   msg.ConversationID,
		"episode_scheduled": h != nil,
	}
	if h != nil {
		if err := h.Wait(cmd.Context()); err != nil {
			out["episode_error"] = err.Error()
		}
	}
	if n := shutdown(svc, logger); n > 0 {
		out["abandoned"] = n
	}
	printJSON(out)
}
