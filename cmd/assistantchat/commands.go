package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"AssistantChat/internal/app"
)

func newAskCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [index|question]",
		Short: "Ask the assistant a question and print its reply",
		Long: `Posts a question to the stored thread, runs the assistant and prints the reply.

The argument is either a zero-based index into the "questions" list of the
session file or the question text itself. Without an argument a default
question is asked. An unfinished run left by an earlier invocation is resumed
instead of posting a new question.

Examples:
  assistantchat ask
  assistantchat ask 2
  assistantchat ask "What is the derivative of x^2?"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			return withApp(cmd, v, needs{api: true, tools: true, history: true}, func(ctx context.Context, a *app.App) error {
				return a.Ask(ctx, arg)
			})
		},
	}
}

func newMessagesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "messages",
		Short: "Print every message of the stored thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, needs{api: true}, func(ctx context.Context, a *app.App) error {
				return a.Messages(ctx)
			})
		},
	}
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [assistant-id]",
		Short: "Delete an assistant, by default the stored one",
		Long: `Deletes the given assistant, or the one stored in the session file.
Deleting the stored assistant also forgets its thread and run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return withApp(cmd, v, needs{api: true}, func(ctx context.Context, a *app.App) error {
				return a.Delete(ctx, id)
			})
		},
	}
}

func newListCmd(v *viper.Viper) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assistants in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, needs{api: true}, func(ctx context.Context, a *app.App) error {
				return a.List(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of assistants to list")
	return cmd
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the runs recorded by earlier invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, needs{history: true}, func(ctx context.Context, a *app.App) error {
				return a.History(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to print")
	return cmd
}

func newToolsCmd(v *viper.Viper) *cobra.Command {
	var reload bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show connected MCP servers and their tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, needs{tools: true}, func(ctx context.Context, a *app.App) error {
				return a.Tools(ctx, reload)
			})
		},
	}
	cmd.Flags().BoolVar(&reload, "reload", false, "Reload the tool lists before printing")
	return cmd
}
