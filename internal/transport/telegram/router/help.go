package router

import (
	"strings"
)

func (r *Router) helpText(args []string) string {
	r.mu.RLock()
	ordered := r.ordered
	r.mu.RUnlock()

	if len(args) > 0 {
		c, ok := r.lookup(normalizeName(args[0]))
		if !ok {
			return textUnknown
		}
		return commandHelp(c)
	}

	lines := []string{"可用命令：", ""}
	for _, c := range ordered {
		line := "/" + c.Name
		if c.Description != "" {
			line += " - " + c.Description
		}
		if c.Access == AccessOwnerOnly {
			line += " 🔒"
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", "输入 /help <命令> 查看详细用法。")
	return strings.Join(lines, "\n")
}

func commandHelp(c Command) string {
	lines := []string{"/" + c.Name}
	if c.Description != "" {
		lines = append(lines, c.Description)
	}
	if c.Usage != "" {
		lines = append(lines, "用法："+c.Usage)
	}
	if len(c.Aliases) > 0 {
		lines = append(lines, "别名：/"+strings.Join(c.Aliases, " /"))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 仅限管理员")
	}
	return strings.Join(lines, "\n")
}
