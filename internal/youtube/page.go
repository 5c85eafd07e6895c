package youtube

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/raphaelgruber/ytchat/internal/models"
	"github.com/raphaelgruber/ytchat/internal/transcript"
)

// Re-exported source errors so callers holding only this package can match them.
var (
	ErrVideoUnavailable = transcript.ErrVideoUnavailable
	ErrCaptionsDisabled = transcript.ErrCaptionsDisabled
	ErrNoCaptions       = transcript.ErrNoCaptions
	ErrTooManyRequests  = transcript.ErrTooManyRequests

	// ErrInvalidURL is returned when a URL does not identify a video.
	ErrInvalidURL = errors.New("invalid youtube url")

	// errNoPlayerResponse means the watch page had no embedded player data.
	errNoPlayerResponse = errors.New("player response not found in watch page")
)

const playerResponseMarker = "ytInitialPlayerResponse"

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		Renderer *struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	VideoDetails struct {
		VideoID string `json:"videoId"`
		Title   string `json:"title"`
	} `json:"videoDetails"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

func (t captionTrack) autoGenerated() bool { return t.Kind == "asr" }

// parseWatchPage extracts the player response embedded in a watch page.
func parseWatchPage(page []byte) (*playerResponse, error) {
	if bytes.Contains(page, []byte("g-recaptcha")) {
		return nil, transcript.ErrTooManyRequests
	}

	script, err := findPlayerScript(page)
	if err != nil {
		return nil, err
	}

	idx := strings.Index(script, playerResponseMarker)
	start := strings.IndexByte(script[idx:], '{')
	if start < 0 {
		return nil, errNoPlayerResponse
	}

	var pr playerResponse
	dec := json.NewDecoder(strings.NewReader(script[idx+start:]))
	if err := dec.Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	return &pr, nil
}

// findPlayerScript walks the document and returns the first script body
// that assigns the player response.
func findPlayerScript(page []byte) (string, error) {
	z := xhtml.NewTokenizer(bytes.NewReader(page))
	inScript := false
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", errNoPlayerResponse
			}
			return "", fmt.Errorf("tokenize watch page: %w", z.Err())
		case xhtml.StartTagToken:
			name, _ := z.TagName()
			inScript = string(name) == "script"
		case xhtml.EndTagToken:
			inScript = false
		case xhtml.TextToken:
			if !inScript {
				continue
			}
			text := string(z.Text())
			if strings.Contains(text, playerResponseMarker) {
				return text, nil
			}
		}
	}
}

// playabilityError maps the playability status onto source errors.
func (pr *playerResponse) playabilityError() error {
	switch pr.PlayabilityStatus.Status {
	case "", "OK":
		return nil
	case "ERROR", "LOGIN_REQUIRED", "UNPLAYABLE":
		if pr.PlayabilityStatus.Reason != "" {
			return fmt.Errorf("%w: %s", transcript.ErrVideoUnavailable, pr.PlayabilityStatus.Reason)
		}
		return transcript.ErrVideoUnavailable
	default:
		return nil
	}
}

// selectTrack picks a caption track for opts.
func (pr *playerResponse) selectTrack(opts transcript.FetchOptions) (captionTrack, error) {
	if pr.Captions == nil || pr.Captions.Renderer == nil {
		return captionTrack{}, transcript.ErrCaptionsDisabled
	}
	tracks := pr.Captions.Renderer.CaptionTracks
	if len(tracks) == 0 {
		return captionTrack{}, transcript.ErrNoCaptions
	}

	if opts.AutoGenerated {
		for _, t := range tracks {
			if t.autoGenerated() && languageMatches(t.LanguageCode, opts.Language) {
				return t, nil
			}
		}
		return captionTrack{}, transcript.ErrNoCaptions
	}

	if opts.Language != "" {
		for _, t := range tracks {
			if strings.EqualFold(t.LanguageCode, opts.Language) {
				return t, nil
			}
		}
		return captionTrack{}, transcript.ErrNoCaptions
	}

	// Default: prefer a manually created track.
	for _, t := range tracks {
		if !t.autoGenerated() {
			return t, nil
		}
	}
	return tracks[0], nil
}

func languageMatches(code, want string) bool {
	return want == "" || strings.EqualFold(code, want)
}

// timedText covers both the legacy format (<transcript><text start dur>)
// and srv3 (<timedtext><body><p t d>).
type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
	Paragraphs []struct {
		T     string `xml:"t,attr"`
		D     string `xml:"d,attr"`
		Body  string `xml:",chardata"`
		Words []struct {
			Body string `xml:",chardata"`
		} `xml:"s"`
	} `xml:"body>p"`
}

// parseTimedText decodes a caption track into ordered segments.
func parseTimedText(body []byte) ([]models.Segment, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("decode timed text: %w", err)
	}

	segments := make([]models.Segment, 0, len(tt.Texts)+len(tt.Paragraphs))
	for _, t := range tt.Texts {
		segments = append(segments, models.Segment{
			Text:     html.UnescapeString(t.Body),
			Offset:   parseFloat(t.Start),
			Duration: parseFloat(t.Dur),
		})
	}
	for _, p := range tt.Paragraphs {
		text := p.Body
		if len(p.Words) > 0 {
			var sb strings.Builder
			for _, w := range p.Words {
				sb.WriteString(w.Body)
			}
			text = sb.String()
		}
		segments = append(segments, models.Segment{
			Text:     html.UnescapeString(text),
			Offset:   parseFloat(p.T) / 1000,
			Duration: parseFloat(p.D) / 1000,
		})
	}
	return segments, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
