package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"chatd/internal/console"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "chat",
		Short:   "Chat on the terminal; type /stop to quit",
		Example: "  chatd chat --model ~/models/phogpt-4b-chat.Q4_K_M.gguf --template vi",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bot, err := a.newBot(cmd)
			if err != nil {
				return err
			}
			defer bot.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return console.Loop{
				In:     cmd.InOrStdin(),
				Out:    cmd.OutOrStdout(),
				Bot:    bot,
				Logger: a.log,
			}.Run(ctx)
		},
	}
}
