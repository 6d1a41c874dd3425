package tgui

import (
	"context"
	"testing"

	kit "trendbot/internal/transport"
)

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()
	got := New().
		Title("📊", "Status <now>").
		Field("Next post", "12:00 & later").
		Blank().
		Line("a<b").
		Pre("x > y\n").
		String()
	want := "📊 <b>Status &lt;now&gt;</b>\n<b>Next post:</b> 12:00 &amp; later\n\na&lt;b\n<pre>x &gt; y</pre>"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestTruncation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		fn   func(string, int) string
		in   string
		n    int
		want string
	}{
		{TruncRunes, "abcdef", 4, "abc…"},
		{TruncRunes, "abcd", 4, "abcd"},
		{TruncRunes, "héllo wörld", 6, "héllo…"},
		{TruncRunes, "ab", 0, ""},
		{TruncEscaped, "a&b c", 7, "a&…"},
		{TruncEscaped, "fits", 10, "fits"},
		{TruncEscaped, "xyz", 1, ""},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.in, tt.n); got != tt.want {
			t.Fatalf("trunc(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

type recAdapter struct {
	kit.Adapter
	sent   string
	edited string
	opt    *kit.SendOptions
}

func (r *recAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.sent, r.opt = text, opt
	return kit.MessageRef{MessageID: "1"}, nil
}

func (r *recAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	r.edited = text
	return nil
}

func TestMessageSendAndEdit(t *testing.T) {
	t.Parallel()
	ad := &recAdapter{}
	msg := New().Title("", "Hi").Build()
	ref, err := msg.Send(context.Background(), ad, kit.ChatTarget{ChatID: "1"})
	if err != nil || ref.MessageID != "1" {
		t.Fatalf("send: %v %+v", err, ref)
	}
	if ad.sent != "<b>Hi</b>" || ad.opt.ParseMode != "HTML" || !ad.opt.DisablePreview {
		t.Fatalf("sent %q opt %+v", ad.sent, ad.opt)
	}
	if err := msg.Edit(context.Background(), ad, ref); err != nil || ad.edited != "<b>Hi</b>" {
		t.Fatalf("edit: %v %q", err, ad.edited)
	}
}
