package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveVideoID(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		wantID string
		wantOK bool
	}{
		{"short link", "https://youtu.be/2CEhKWuC6fM", "2CEhKWuC6fM", true},
		{"short link with share param", "https://youtu.be/2CEhKWuC6fM?si=nGisZyNsAvu6Fp2K", "2CEhKWuC6fM", true},
		{"short link without scheme", "youtu.be/9w4jvRLR7M8", "9w4jvRLR7M8", true},
		{"watch", "https://www.youtube.com/watch?v=9w4jvRLR7M8", "9w4jvRLR7M8", true},
		{"watch with extra params", "https://www.youtube.com/watch?v=9w4jvRLR7M8&t=42s", "9w4jvRLR7M8", true},
		{"watch with v not first", "https://www.youtube.com/watch?feature=share&v=9w4jvRLR7M8", "9w4jvRLR7M8", true},
		{"watch without www", "https://youtube.com/watch?v=9w4jvRLR7M8#comments", "9w4jvRLR7M8", true},
		{"embed", "https://www.youtube.com/embed/9w4jvRLR7M8?autoplay=1", "9w4jvRLR7M8", true},
		{"embed nocookie", "https://www.youtube-nocookie.com/embed/9w4jvRLR7M8", "9w4jvRLR7M8", true},
		{"v path", "https://www.youtube.com/v/9w4jvRLR7M8?version=3", "9w4jvRLR7M8", true},
		{"mobile", "https://m.youtube.com/watch?v=9w4jvRLR7M8", "9w4jvRLR7M8", true},
		{"music subdomain", "https://music.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"lookalike host", "https://notyoutube.com/watch?v=dQw4w9WgXcQ", "", false},
		{"live", "https://www.youtube.com/live/9w4jvRLR7M8?feature=shared", "9w4jvRLR7M8", true},
		{"shorts", "https://www.youtube.com/shorts/9w4jvRLR7M8", "9w4jvRLR7M8", true},
		{"surrounding whitespace", "  https://youtu.be/abc_DEF-123  ", "abc_DEF-123", true},

		{"empty", "", "", false},
		{"not a url", "who was norris?", "", false},
		{"other site", "https://vimeo.com/123456", "", false},
		{"channel page", "https://www.youtube.com/@somechannel", "", false},
		{"watch without id", "https://www.youtube.com/watch?list=PL123", "", false},
		{"short link without id", "https://youtu.be/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ResolveVideoID(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=9w4jvRLR7M8", WatchURL("9w4jvRLR7M8"))
}
