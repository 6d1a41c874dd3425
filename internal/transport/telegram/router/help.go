package router

import (
	"strings"

	"trendbot/pkg/tgui"
)

// helpText renders the command list in Telegram HTML parse mode.
func (m *Router) helpText() string {
	m.mu.RLock()
	cmds := m.ordered
	m.mu.RUnlock()

	b := tgui.New().Title("📚", "Commands").Blank()
	for _, c := range cmds {
		row := "/" + c.Name
		if len(c.Aliases) > 0 {
			row += " (/" + strings.Join(c.Aliases, ", /") + ")"
		}
		if c.Description != "" {
			row += " - " + c.Description
		}
		if c.Access == AccessOwnerOnly {
			row = "🔒 " + row
		}
		b.Line(row)
	}
	return b.String()
}
