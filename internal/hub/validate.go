package hub

import (
	"strings"
	"unicode/utf8"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
)

const (
	// maxTextRunes is the text body limit, counted in code points. Longer
	// bodies are truncated, not rejected.
	maxTextRunes = 5000

	// maxEmojiRunes bounds the emoji token length.
	maxEmojiRunes = 32
)

// messageContent resolves the tagged content variant of a send request into
// (kind, body, fileName). Fields are probed in a fixed priority order, so a
// payload that sets several variants still resolves deterministically. An
// empty result means no variant was present.
func messageContent(msg protocol.SendMsg) (kind, body, fileName string) {
	if text := strings.TrimSpace(msg.Text); text != "" {
		return protocol.KindText, truncateRunes(text, maxTextRunes), ""
	}
	if u := strings.TrimSpace(msg.ImageURL); u != "" {
		return protocol.KindImage, u, ""
	}
	if u := strings.TrimSpace(msg.VideoURL); u != "" {
		return protocol.KindVideo, u, ""
	}
	if u := strings.TrimSpace(msg.AudioURL); u != "" {
		return protocol.KindAudio, u, ""
	}
	if u := strings.TrimSpace(msg.FileURL); u != "" {
		return protocol.KindFile, u, strings.TrimSpace(msg.FileName)
	}
	return "", "", ""
}

// normalizeEmoji trims the emoji token and reports whether it is usable.
func normalizeEmoji(emoji string) (string, bool) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return "", false
	}
	return emoji, true
}

// truncateRunes cuts s to at most n code points, never splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
