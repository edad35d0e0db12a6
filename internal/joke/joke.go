// Package joke produces the bot's small-talk replies.
package joke

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const silence = "Say something, I'm listening."

var (
	questions = []string{
		"%s? Ask me again after coffee.",
		"Nobody knows %s. Not even me.",
		"Short answer: yes. Long answer about %s: no.",
	}
	statements = []string{
		"I have a joke about %s, but you wouldn't get it.",
		"%s... that is what they all say.",
		"Why did %s cross the road? To get away from this chat.",
		"Tell me more about %s. Actually, don't.",
	}
)

// Reply returns a joke for text. The same text always gets the same reply.
func Reply(text string) string {
	text = strings.TrimSpace(text)
	subject := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	if subject == "" {
		return silence
	}

	templates := statements
	if strings.HasSuffix(text, "?") {
		templates = questions
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(subject)))
	return fmt.Sprintf(templates[h.Sum32()%uint32(len(templates))], subject)
}
