package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text>...",
	Short: "Send a message to a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	core, err := buildCore()
	if err != nil {
		return err
	}

	conversationID := args[0]
	content := strings.Join(args[1:], " ")

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	// The coordinator only accepts messages for known conversations.
	if err := core.LoadConversations(ctx); err != nil {
		return err
	}
	if _, ok := core.Store().GetConversation(conversationID); !ok {
		return fmt.Errorf("unknown conversation %q", conversationID)
	}

	if !core.SendMessage(ctx, conversationID, content) {
		return fmt.Errorf("send failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sent")
	return nil
}
