package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"AssistantChat/internal/config"
	"AssistantChat/internal/telemetry"
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "assistantchat",
		Short:         "Ask an OpenAI assistant questions from the command line",
		Version:       telemetry.ServiceVersion,
		SilenceUsage:  true,  // Don't print usage on error
		SilenceErrors: false, // Do print errors
		Long: `assistantchat drives the OpenAI Assistants API. It creates or reuses an
assistant and a conversation thread, posts your question, waits for the run
to finish and prints the reply.

Assistant, thread and run ids are kept in a JSON session file between
invocations, so follow-up questions continue the same conversation.`,
	}

	flags := root.PersistentFlags()
	flags.String("session-file", config.DefaultSessionFile, "Session state file")
	flags.String("log-dir", config.DefaultLogDir, "Directory for log, trace and metric files")
	flags.String("db-path", config.DefaultDBPath, "Run history database")
	flags.Bool("no-history", false, "Do not record runs in the history database")
	flags.Bool("debug", false, "Enable debug logging")
	flags.Int("max-polls", config.DefaultMaxPolls, "Maximum run status checks before giving up")
	flags.String("assistant-file", "", "YAML assistant definition used when creating an assistant")
	flags.String("base-url", "", "Override the OpenAI API base URL")

	// MCP flags
	flags.Bool("mcp-enabled", false, "Register MCP server tools as assistant function tools")
	flags.StringSlice("mcp-local", nil, "Comma-separated paths to local MCP servers")
	flags.StringSlice("mcp-remote", nil, "Comma-separated URLs to remote MCP servers (http:// or ws://)")

	for _, name := range []string{
		"session-file", "log-dir", "db-path", "no-history", "debug", "max-polls",
		"assistant-file", "base-url", "mcp-enabled", "mcp-local", "mcp-remote",
	} {
		_ = v.BindPFlag(flagKey(name), flags.Lookup(name))
	}
	config.SetDefaults(v)

	root.AddCommand(
		newAskCmd(v),
		newMessagesCmd(v),
		newDeleteCmd(v),
		newListCmd(v),
		newHistoryCmd(v),
		newToolsCmd(v),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	err := newRootCmd(viper.New()).ExecuteContext(ctx)
	stop()
	if err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}
