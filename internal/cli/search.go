package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytchat/internal/service"
)

func (c *cli) searchCmd() *cobra.Command {
	var (
		videoID string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed transcripts without the model",
		Long: `Search indexed transcript chunks by semantic similarity.

Examples:
  ytchat search "never gonna give you up"
  ytchat search "chorus" --video dQw4w9WgXcQ -k 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matches, err := c.svc.Search.Search(cmd.Context(), service.SearchOptions{
				Query:   args[0],
				VideoID: videoID,
				Limit:   limit,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if len(matches) == 0 {
				fmt.Fprintln(c.out, "No results found.")
				return nil
			}

			fmt.Fprintf(c.out, "Found %d results:\n\n", len(matches))
			for i, m := range matches {
				header := fmt.Sprintf("%d. %s #%d", i+1, m.VideoID, m.Ordinal)
				fmt.Fprintf(c.out, "%s %s\n", c.paint(c.theme.accentStyle(), header),
					c.paint(c.theme.hintStyle(), fmt.Sprintf("(%.3f)", m.Score)))
				fmt.Fprintf(c.out, "   %s\n\n", snippet(m.Text, 200))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&videoID, "video", "", "only search this video")
	cmd.Flags().IntVarP(&limit, "limit", "k", 0, "max results (default from config)")
	return cmd
}

func snippet(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	return string(r[:maxRunes]) + "..."
}
