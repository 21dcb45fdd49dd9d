package lister

import (
	"strconv"
	"strings"
	"unicode"

	"pluginlister/internal/host"
)

const (
	// MaxContentLength is the receiver's limit for a plain-text message, in runes.
	MaxContentLength = 2000

	EmbedTitle = "Installed Plugins"
	EmbedColor = 3447003

	contentHeader = "**Installed Plugins:**"
)

// Payload is the JSON body posted to the webhook. Exactly one of Content
// and Embeds is set.
type Payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// ShortList is the chat reply: "1. Title" per plugin, no versions.
func ShortList(items []host.PluginInfo) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(it.Title)
	}
	return b.String()
}

// LongLines renders "Title vVersion" per plugin.
func LongLines(items []host.PluginInfo) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title+" v"+it.Version)
	}
	return out
}

func BuildEmbed(items []host.PluginInfo) Payload {
	return Payload{Embeds: []Embed{{
		Title:       EmbedTitle,
		Description: strings.Join(LongLines(items), "\n"),
		Color:       EmbedColor,
	}}}
}

// BuildContent renders the header plus long lines and splits the result
// into plain-text payloads no longer than MaxContentLength.
func BuildContent(items []host.PluginInfo) []Payload {
	msg := contentHeader + "\n" + strings.Join(LongLines(items), "\n")
	chunks := SplitMessage(msg, MaxContentLength)
	out := make([]Payload, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Payload{Content: c})
	}
	return out
}

// SplitMessage cuts msg into chunks of at most limit runes. Each cut is made
// at the last newline at or before the limit, or exactly at the limit when
// there is none. Chunks are trimmed and empty ones dropped.
func SplitMessage(msg string, limit int) []string {
	if limit <= 0 {
		limit = MaxContentLength
	}
	rest := trimRunes([]rune(msg))
	var out []string
	for len(rest) > limit {
		cut := lastNewline(rest, limit)
		if cut <= 0 {
			cut = limit
		}
		if chunk := trimRunes(rest[:cut]); len(chunk) > 0 {
			out = append(out, string(chunk))
		}
		rest = trimRunes(rest[cut:])
	}
	if len(rest) > 0 {
		out = append(out, string(rest))
	}
	return out
}

// lastNewline returns the index of the last '\n' in rs[:limit+1], or -1.
func lastNewline(rs []rune, limit int) int {
	end := limit
	if end >= len(rs) {
		end = len(rs) - 1
	}
	for i := end; i >= 0; i-- {
		if rs[i] == '\n' {
			return i
		}
	}
	return -1
}

func trimRunes(rs []rune) []rune {
	start, end := 0, len(rs)
	for start < end && unicode.IsSpace(rs[start]) {
		start++
	}
	for end > start && unicode.IsSpace(rs[end-1]) {
		end--
	}
	return rs[start:end]
}
