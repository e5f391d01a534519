package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd(opts *options) *cobra.Command {
	var model, chatContext string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message to Mira",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			reply, err := c.Chat(cmd.Context(), strings.Join(args, " "), chatContext, model)
			if err != nil {
				return explain("chat", err)
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), reply)
			}

			out := cmd.OutOrStdout()
			if !reply.Success {
				_, err = fmt.Fprintf(out, "Mira is %s (%s): %s\n", reply.Status, reply.Reason, reply.Message)
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n\n-- %s\n", reply.Response, reply.Model)
			return err
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", `Model id, or "auto" to let the catalog pick`)
	cmd.Flags().StringVar(&chatContext, "context", "", "Conversation context for the system prompt")
	return cmd
}
