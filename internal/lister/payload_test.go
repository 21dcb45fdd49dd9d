package lister

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"pluginlister/internal/host"
)

func plugins(n int) []host.PluginInfo {
	out := make([]host.PluginInfo, n)
	for i := range out {
		out[i] = host.PluginInfo{Title: fmt.Sprintf("Plugin%03d", i), Version: fmt.Sprintf("1.%d.0", i)}
	}
	return out
}

func TestShortAndLongLines(t *testing.T) {
	t.Parallel()
	items := []host.PluginInfo{{Title: "Alpha", Version: "1.0.0"}, {Title: "Beta", Version: "2.3.1", Author: "x"}}

	if got, want := ShortList(items), "1. Alpha\n2. Beta"; got != want {
		t.Fatalf("ShortList = %q, want %q", got, want)
	}
	long := LongLines(items)
	if len(long) != 2 || long[0] != "Alpha v1.0.0" || long[1] != "Beta v2.3.1" {
		t.Fatalf("LongLines = %q", long)
	}
}

func TestBuildEmbedWireFormat(t *testing.T) {
	t.Parallel()
	p := BuildEmbed([]host.PluginInfo{{Title: "Alpha", Version: "1.0.0"}, {Title: "Beta", Version: "2.0"}})
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"embeds":[{"title":"Installed Plugins","description":"Alpha v1.0.0\nBeta v2.0","color":3447003}]}`
	if string(b) != want {
		t.Fatalf("embed json = %s\nwant %s", b, want)
	}
}

func TestBuildContentChunksKeepEveryLineOnce(t *testing.T) {
	t.Parallel()
	items := plugins(300)
	chunks := BuildContent(items)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Content, contentHeader+"\n") {
		t.Fatalf("first chunk lacks header: %q", chunks[0].Content[:40])
	}

	var lines []string
	for i, c := range chunks {
		if c.Embeds != nil {
			t.Fatalf("chunk %d carries embeds", i)
		}
		if n := utf8.RuneCountInString(c.Content); n > MaxContentLength {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		lines = append(lines, strings.Split(c.Content, "\n")...)
	}
	want := append([]string{contentHeader}, LongLines(items)...)
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	b, _ := json.Marshal(chunks[0])
	if !strings.HasPrefix(string(b), `{"content":"**Installed Plugins:**\n`) {
		t.Fatalf("content json = %.60s", b)
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		msg   string
		limit int
		want  []string
	}{
		{"fits", "a\nb", 10, []string{"a\nb"}},
		{"empty", "  \n ", 10, nil},
		{"newline boundary", "aaaa\nbbbb\ncccc", 9, []string{"aaaa\nbbbb", "cccc"}},
		{"newline exactly at limit", "aaaa\nbbbb", 4, []string{"aaaa", "bbbb"}},
		{"hard split", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"trims chunks", "  ab  \n\n  cd  ", 5, []string{"ab", "cd"}},
		{"runes not bytes", "ééééé\nüü", 5, []string{"ééééé", "üü"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SplitMessage(tc.msg, tc.limit)
			if len(got) != len(tc.want) {
				t.Fatalf("SplitMessage = %q, want %q", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("chunk %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSplitMessageReassembles(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 10, 97, 250} {
		msg := strings.Join(LongLines(plugins(n)), "\n")
		for _, limit := range []int{40, 100, MaxContentLength} {
			chunks := SplitMessage(msg, limit)
			for i, c := range chunks {
				if utf8.RuneCountInString(c) > limit {
					t.Fatalf("n=%d limit=%d chunk %d too long", n, limit, i)
				}
			}
			if got := strings.Join(chunks, "\n"); got != msg {
				t.Fatalf("n=%d limit=%d: reassembled message differs", n, limit)
			}
		}
	}
}
