package router

import (
	"strings"

	"greetbot/internal/transport"
)

// buildMenu lists commands in name order for the platform command menu.
// Owner-only commands are marked with a lock.
func buildMenu(ordered []Command) []transport.BotCommand {
	out := make([]transport.BotCommand, 0, len(ordered))
	seen := map[string]bool{}
	for _, c := range ordered {
		name := sanitizeMenuCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		out = append(out, transport.BotCommand{Command: name, Description: desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}
