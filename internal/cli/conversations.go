package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recently active first",
	RunE:    runConversations,
}

func runConversations(cmd *cobra.Command, args []string) error {
	core, err := buildCore()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if err := core.LoadConversations(ctx); err != nil {
		return err
	}

	convs := core.Store().ListConversations()
	if len(convs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no conversations")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUNREAD\tLAST ACTIVITY")
	for _, c := range convs {
		last := ""
		if !c.UpdatedAt.IsZero() {
			last = c.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.DisplayName(core.Store().SelfID()), c.Unread, last)
	}
	return w.Flush()
}
