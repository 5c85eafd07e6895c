package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytchat/internal/conversation"
	"github.com/raphaelgruber/ytchat/internal/index"
)

func (c *cli) askCmd() *cobra.Command {
	var threadID, videoID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question",
		Long: `Ask a question. The model can ingest videos and search their transcripts
to answer it.

Examples:
  ytchat ask "Summarize https://youtu.be/dQw4w9WgXcQ"
  ytchat ask "What is the chorus about?" --video dQw4w9WgXcQ`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if threadID == "" {
				threadID = uuid.NewString()[:8]
			}
			return c.answer(cmd.Context(), threadID, videoID, args[0])
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "conversation thread id")
	cmd.Flags().StringVar(&videoID, "video", "", "video id the question is about")
	return cmd
}

func (c *cli) chatCmd() *cobra.Command {
	var videoID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation. Every line is one question; the
conversation keeps its history until you exit with Ctrl+D or "exit".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.repl(cmd.Context(), os.Stdin, uuid.NewString()[:8], videoID)
		},
	}
	cmd.Flags().StringVar(&videoID, "video", "", "video id the conversation is about")
	return cmd
}

func (c *cli) repl(ctx context.Context, in io.Reader, threadID, videoID string) error {
	prompt := c.paint(c.theme.accentStyle(), "you> ")
	fmt.Fprintln(c.out, c.paint(c.theme.hintStyle(), "thread "+threadID+", Ctrl+D to exit"))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := c.answer(ctx, threadID, videoID, line); err != nil {
			// Keep the session alive; the thread history is intact.
			fmt.Fprintln(c.out, c.paint(c.theme.errorStyle(), "error: "+err.Error()))
		}
	}
}

func (c *cli) answer(ctx context.Context, threadID, videoID, question string) error {
	resp, err := c.svc.Engine.Invoke(ctx, conversation.Request{
		ThreadID: threadID,
		Query:    question,
		VideoID:  videoID,
	})
	if err != nil {
		if errors.Is(err, index.ErrBackendUnavailable) {
			return fmt.Errorf("vector database unavailable, retry in 30 seconds: %w", err)
		}
		return err
	}

	if c.verbose {
		for _, call := range resp.ToolCalls {
			fmt.Fprintln(c.out, c.paint(c.theme.hintStyle(), fmt.Sprintf("→ %s %s", call.Name, call.Arguments)))
		}
	}
	fmt.Fprintln(c.out, resp.Answer)
	return nil
}
