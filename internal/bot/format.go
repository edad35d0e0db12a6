package bot

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"billfred/internal/model"
)

// MaxMessageUnits is the longest body the transport accepts in one message,
// counted in UTF-16 code units as Telegram counts them.
const MaxMessageUnits = 4096

const noFeeds = "No feeds are monitored."

// FormatHelp returns the help message for a bot called nick.
func FormatHelp(nick string) string {
	return fmt.Sprintf(`Talk to me by starting a message with "%[1]s":
%[1]s ping - measure the round trip to you
%[1]s version - show the bot version
%[1]s feeds - list monitored feeds
%[1]s wiki[<lang>][:title] <query> - search Wikipedia, e.g. "%[1]s wikien:title Go"
%[1]s <anything else> - small talk

Links posted in the room get their page titles.`, nick)
}

// FormatFeedList formats the monitored feeds, one line per feed.
func FormatFeedList(tasks []model.FeedTask) string {
	if len(tasks) == 0 {
		return noFeeds
	}
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("monitoring: %s in %d seconds period.", t.Prefix, int(t.PollInterval.Seconds())))
	}
	return strings.Join(lines, "\n")
}

// SplitMessage breaks body into parts of at most limit UTF-16 code units. It
// cuts at line boundaries and only splits a line that is longer than limit by
// itself.
func SplitMessage(body string, limit int) []string {
	if limit < 1 || utf16Len(body) <= limit {
		return []string{body}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if n > 0 {
			parts = append(parts, cur.String())
		}
		cur.Reset()
		n = 0
	}

	for _, line := range strings.Split(body, "\n") {
		size := utf16Len(line)
		for size > limit {
			flush()
			i := cutIndex(line, limit)
			parts = append(parts, line[:i])
			line = line[i:]
			size = utf16Len(line)
		}
		if n > 0 && n+1+size > limit {
			flush()
		}
		if n > 0 {
			cur.WriteByte('\n')
			n++
		}
		cur.WriteString(line)
		n += size
	}
	flush()
	return parts
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// cutIndex returns the byte offset of the longest prefix of s that fits in
// limit units. The prefix always holds at least one rune.
func cutIndex(s string, limit int) int {
	n := 0
	for i, r := range s {
		n += runeUnits(r)
		if n > limit && i > 0 {
			return i
		}
	}
	return len(s)
}

func runeUnits(r rune) int {
	if l := utf16.RuneLen(r); l > 0 {
		return l
	}
	return 1
}
