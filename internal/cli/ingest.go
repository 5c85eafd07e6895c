package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytchat/internal/service"
	"github.com/raphaelgruber/ytchat/internal/transcript"
)

func (c *cli) ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <youtube-url>",
		Short: "Fetch a video's transcript and index it",
		Long: `Fetch the transcript of a YouTube video, split it into overlapping chunks
and store their embeddings in the vector index.

Examples:
  ytchat ingest https://www.youtube.com/watch?v=dQw4w9WgXcQ
  ytchat ingest https://youtu.be/dQw4w9WgXcQ`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.styled {
				return c.ingestInteractive(args[0])
			}
			result, err := c.svc.Ingest.Ingest(cmd.Context(), args[0])
			if err != nil {
				return describeIngestError(err)
			}
			c.printIngestResult(result)
			return nil
		},
	}
}

// ingestInteractive runs the ingestion as a job behind a progress bar.
func (c *cli) ingestInteractive(rawURL string) error {
	job := c.svc.Jobs.Submit(rawURL)
	snap, stopped, err := waitWithProgress(job, c.theme)
	if err != nil {
		return err
	}
	if stopped {
		c.warn("stopped waiting; the ingestion is cancelled when ytchat exits")
		return nil
	}
	if snap.Status == service.JobStatusFailed {
		fmt.Fprintln(c.out, c.paint(c.theme.errorStyle(), "✗ Ingestion failed"))
		return errors.New(snap.Error)
	}
	c.printIngestResult(snap.Result)
	return nil
}

func (c *cli) printIngestResult(r *service.IngestResult) {
	if r == nil {
		return
	}
	var b strings.Builder
	if r.Indexed {
		b.WriteString(c.paint(c.theme.completedStyle(), "✓ Indexed") + "\n\n")
	} else {
		b.WriteString(c.paint(c.theme.errorStyle(), "! Transcript fetched but not indexed") + "\n\n")
	}
	fmt.Fprintf(&b, "  Video:     %s\n", r.VideoID)
	if r.Transcript != nil {
		fmt.Fprintf(&b, "  Strategy:  %s (attempt %d)\n", r.Transcript.Strategy, r.Transcript.Attempts)
		fmt.Fprintf(&b, "  Length:    %d characters\n", len([]rune(r.Transcript.Text)))
	}
	fmt.Fprintf(&b, "  Chunks:    %d/%d stored\n", r.ChunksStored, r.Chunks)
	fmt.Fprintf(&b, "  Duration:  %s\n", r.Duration.Round(10*time.Millisecond))
	if msg := r.IndexError(); msg != "" {
		fmt.Fprintf(&b, "  Error:     %s\n", msg)
	}
	fmt.Fprint(c.out, b.String())
}

// describeIngestError adds the human-readable reason to acquisition failures.
func describeIngestError(err error) error {
	var acqErr *transcript.AcquireError
	if errors.As(err, &acqErr) {
		return fmt.Errorf("%s: %w", acqErr.Reason.Describe(), err)
	}
	return err
}
