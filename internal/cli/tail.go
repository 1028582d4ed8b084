package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imramesh222/bms-chat/internal/bus"
)

var tailNamespace string

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Connect and stream core events until interrupted",
	Long: `tail opens the realtime connection and prints every event published on
the core's bus as one JSON line. Useful for debugging the event flow and
for piping into jq.`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVar(&tailNamespace, "namespace", "", `only events whose kind starts with this prefix (e.g. "message.")`)
}

func runTail(cmd *cobra.Command, args []string) error {
	core, err := buildCore()
	if err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	core.Bus().Subscribe(tailNamespace, func(evt bus.Event) {
		_ = out.Encode(map[string]any{
			"kind":    evt.Kind,
			"time":    evt.Timestamp.Format(time.RFC3339),
			"payload": evt.Payload,
		})
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := core.LoadConversations(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: hydration failed: %v\n", err)
	}
	if err := core.Connect(ctx); err != nil {
		return err
	}
	defer core.Disconnect()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
