package bot

import (
	"fmt"
	"strings"

	"billfred/internal/wiki"
)

// CommandKind is one of the commands the bot understands.
type CommandKind int

// Supported commands. CommandNone means the bot was addressed without a
// command token.
const (
	CommandNone CommandKind = iota
	CommandPing
	CommandVersion
	CommandHelp
	CommandFeeds
	CommandWiki
	CommandJoke
)

var commandNames = map[CommandKind]string{
	CommandNone:    "none",
	CommandPing:    "ping",
	CommandVersion: "version",
	CommandHelp:    "help",
	CommandFeeds:   "feeds",
	CommandWiki:    "wiki",
	CommandJoke:    "joke",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is a parsed chat command.
type Command struct {
	Kind CommandKind
	// Wiki is set for CommandWiki. An empty Text means there was no query.
	Wiki wiki.Query
	// Text is everything after the nick, used by CommandJoke.
	Text string
}

// ParseCommand parses body as a command to the bot called nick. The first
// token must be the nick, optionally prefixed with "@" and followed by "," or
// ":". It returns false when the message is not addressed to the bot.
func ParseCommand(body, nick, wikiLang string) (Command, bool) {
	tokens := strings.Fields(body)
	if nick == "" || len(tokens) == 0 || !isNick(tokens[0], nick) {
		return Command{}, false
	}
	if len(tokens) == 1 {
		return Command{Kind: CommandNone}, true
	}

	switch name := tokens[1]; {
	case name == "ping":
		return Command{Kind: CommandPing}, true
	case name == "version":
		return Command{Kind: CommandVersion}, true
	case name == "help":
		return Command{Kind: CommandHelp}, true
	case name == "feeds":
		return Command{Kind: CommandFeeds}, true
	case wiki.IsCommand(name):
		q, _ := wiki.ParseCommand(body, wikiLang)
		return Command{Kind: CommandWiki, Wiki: q}, true
	default:
		return Command{Kind: CommandJoke, Text: strings.Join(tokens[1:], " ")}, true
	}
}

func isNick(token, nick string) bool {
	token = strings.TrimPrefix(token, "@")
	token = strings.TrimRight(token, ",:")
	return token == nick
}
