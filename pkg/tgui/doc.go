// Package tgui provides small Telegram UI helpers:
//   - HTML fragments that are escaped by construction
//   - Rune-safe truncation that accounts for escaping
//   - A message builder with HTML parse mode and no link previews by default
package tgui
