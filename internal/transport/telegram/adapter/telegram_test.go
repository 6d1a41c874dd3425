package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"trendbot/internal/media"
	"trendbot/internal/present"
	kit "trendbot/internal/transport"
	logx "trendbot/pkg/logx"
)

func offlineAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(Config{Token: "123:test", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("line of text\n", 50)
	tests := []struct {
		name      string
		in        string
		limit     int
		html      bool
		wantParts int
	}{
		{"short", "hello", 10, false, 1},
		{"exact", "0123456789", 10, false, 1},
		{"newline boundary", long, 100, false, 8},
		{"hard cut", strings.Repeat("x", 25), 10, false, 3},
		{"html without tags", strings.Repeat("y", 25), 10, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			parts := splitMessage(tt.in, tt.limit, tt.html)
			if len(parts) != tt.wantParts {
				t.Fatalf("got %d parts, want %d", len(parts), tt.wantParts)
			}
			for i, p := range parts {
				if n := len([]rune(p)); n > tt.limit {
					t.Fatalf("part %d has %d runes (limit %d)", i, n, tt.limit)
				}
			}
		})
	}
}

func TestSplitMessageKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 8) + "<b>bold</b>"
	parts := splitMessage(in, 10, true)
	if parts[0] != strings.Repeat("a", 8) {
		t.Fatalf("first part %q cut inside a tag", parts[0])
	}
}

func TestCardHTML(t *testing.T) {
	t.Parallel()
	card := present.DisplayCard{
		Kind:    media.KindMovie,
		Heading: "Dune: Part Two",
		Summary: "Paul & Chani <3",
		Lines:   []present.Line{{Label: "Rating", Value: "8.3/10"}, {Label: "Watching now", Value: "1523"}},
	}
	got := cardHTML(card, captionLimit)
	want := "<b>Dune: Part Two</b>\nPaul &amp; Chani &lt;3\n\n<b>Rating:</b> 8.3/10\n<b>Watching now:</b> 1523"
	if got != want {
		t.Fatalf("cardHTML =\n%s\nwant\n%s", got, want)
	}

	card.Summary = strings.Repeat("word ", 400)
	got = cardHTML(card, captionLimit)
	if n := len([]rune(got)); n > captionLimit {
		t.Fatalf("caption has %d runes", n)
	}
	if !strings.Contains(got, "…") || !strings.HasSuffix(got, "1523") {
		t.Fatalf("summary not shortened in place:\n%s", got)
	}
}

func TestSplitCardsKeepsRankingOrder(t *testing.T) {
	t.Parallel()
	cards := []present.DisplayCard{
		{Heading: "#1", ImageURL: "https://img/1.jpg"},
		{Heading: "#2"},
		{Heading: "#3", ImageURL: "https://img/3.jpg"},
		{Heading: "#4", ImageURL: "https://img/4.jpg"},
		{Heading: "#5"},
		{Heading: "#6"},
	}
	runs := splitCards(cards)

	var order []string
	for i, r := range runs {
		if len(r.album) > 0 && len(r.texts) > 0 {
			t.Fatalf("run %d mixes photos and text", i)
		}
		for _, m := range r.album {
			p, ok := m.(*tele.Photo)
			if !ok {
				t.Fatalf("run %d: album item %T", i, m)
			}
			order = append(order, strings.SplitN(strings.TrimPrefix(p.Caption, "<b>"), "<", 2)[0])
		}
		for _, txt := range r.texts {
			order = append(order, strings.SplitN(strings.TrimPrefix(txt, "<b>"), "<", 2)[0])
		}
	}
	if got := strings.Join(order, " "); got != "#1 #2 #3 #4 #5 #6" {
		t.Fatalf("delivery order = %s", got)
	}
	sizes := make([]int, len(runs))
	for i, r := range runs {
		sizes[i] = r.size()
	}
	if len(sizes) != 4 || sizes[0] != 1 || sizes[1] != 1 || sizes[2] != 2 || sizes[3] != 2 {
		t.Fatalf("run sizes = %v, want [1 1 2 2]", sizes)
	}
	if p := runs[2].album[1].(*tele.Photo); p.FileURL != "https://img/4.jpg" {
		t.Fatalf("photo url = %q", p.FileURL)
	}
}

func TestChatMisconfigured(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unset", ErrNoChat, true},
		{"malformed", fmt.Errorf("%w: %q", ErrBadChatID, "general"), true},
		{"chat not found", fmt.Errorf("telegram: resolve @x: %w", tele.ErrChatNotFound), true},
		{"kicked", tele.ErrKickedFromChannel, true},
		{"bad token", tele.ErrUnauthorized, true},
		{"server error", tele.ErrInternal, false},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tt := range tests {
		if got := chatMisconfigured(tt.err); got != tt.want {
			t.Fatalf("%s: chatMisconfigured = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRecipientAndCheck(t *testing.T) {
	t.Parallel()
	a := offlineAdapter(t)

	chat, err := a.recipient(kit.ChatTarget{ChatID: "-1001234"})
	if err != nil || chat.ID != -1001234 {
		t.Fatalf("numeric recipient = %+v, %v", chat, err)
	}
	if _, err := a.recipient(kit.ChatTarget{ChatID: "general"}); !errors.Is(err, ErrBadChatID) {
		t.Fatalf("bare name: %v", err)
	}

	dest := a.Destination(kit.ChatTarget{})
	if err := dest.Check(context.Background()); !errors.Is(err, ErrNoChat) || !errors.Is(err, media.ErrConfigInvalid) {
		t.Fatalf("Check on empty target = %v", err)
	}
	if got := a.Destination(kit.ChatTarget{ChatID: "-100", ThreadID: 7}).Name(); got != "telegram:-100/7" {
		t.Fatalf("Name = %q", got)
	}
}

func TestUpdateFromMessage(t *testing.T) {
	t.Parallel()
	up, ok := updateFromMessage(&tele.Message{
		ID:       42,
		ThreadID: 3,
		Text:     "/trending",
		Chat:     &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 9, Username: "ops"},
	})
	if !ok || up.Kind != kit.UpdateMessage {
		t.Fatalf("update = %+v", up)
	}
	m := up.Message
	if m.Chat.ChatID != "-100" || m.Chat.ThreadID != 3 || m.FromID != 9 || !m.IsGroup {
		t.Fatalf("message = %+v", m)
	}
	if _, ok := updateFromMessage(&tele.Message{}); ok {
		t.Fatal("message without chat accepted")
	}
}
