package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "trendbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestStores(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "journal.db")
			st, err := Open(Config{Driver: driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()
			ctx := context.Background()

			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				r := CycleRecord{
					ID:         fmt.Sprintf("c%d", i),
					Trigger:    "schedule",
					Outcome:    "ok",
					StartedAt:  base.Add(time.Duration(i) * time.Minute),
					FinishedAt: base.Add(time.Duration(i)*time.Minute + 3*time.Second),
					Groups:     []GroupRecord{{Kind: "movie", Fetched: 10, Published: 10}},
				}
				if i == 4 {
					r.Outcome, r.Error = "partial", "tmdb down"
				}
				if err := st.AppendCycle(ctx, r); err != nil {
					t.Fatalf("AppendCycle: %v", err)
				}
			}

			got, err := st.RecentCycles(ctx, 3)
			if err != nil {
				t.Fatalf("RecentCycles: %v", err)
			}
			if len(got) != 3 || got[0].ID != "c4" || got[2].ID != "c2" {
				t.Fatalf("recent = %+v", got)
			}
			if got[0].Outcome != "partial" || got[0].Error != "tmdb down" || got[0].Duration() != 3*time.Second {
				t.Fatalf("newest = %+v", got[0])
			}
			if len(got[1].Groups) != 1 || got[1].Groups[0].Published != 10 {
				t.Fatalf("groups = %+v", got[1].Groups)
			}

			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			if err := st.PutDedup(ctx, "alert:partial", until); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			v, ok, err := st.GetDedup(ctx, "alert:partial")
			if err != nil || !ok || !v.Equal(until) {
				t.Fatalf("GetDedup = %v %v %v", v, ok, err)
			}
			if _, ok, _ := st.GetDedup(ctx, "missing"); ok {
				t.Fatal("missing key found")
			}
		})
	}
}

func TestFileStoreReplaysDedup(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.PutDedup(context.Background(), "k", until)
	_ = st.PutDedup(context.Background(), "expired", time.Now().Add(-time.Hour))
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if v, ok, _ := st.GetDedup(context.Background(), "k"); !ok || !v.Equal(until) {
		t.Fatalf("replayed = %v %v", v, ok)
	}
	if _, ok, _ := st.GetDedup(context.Background(), "expired"); ok {
		t.Fatal("expired key survived replay")
	}
	if got, _ := st.RecentCycles(context.Background(), 10); len(got) != 0 {
		t.Fatalf("empty journal returned %d", len(got))
	}
}

func TestFileStoreCompactsJournal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := range compactEvery {
		if err := st.PutDedup(ctx, fmt.Sprintf("alert-%d", i), until); err != nil {
			t.Fatalf("PutDedup: %v", err)
		}
	}
	_ = st.Close()

	if fi, err := os.Stat(filepath.Join(dir, "state.dedup.journal.jsonl")); err != nil || fi.Size() != 0 {
		t.Fatalf("journal not emptied: %v %v", fi, err)
	}
	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if v, ok, _ := st.GetDedup(ctx, "alert-999"); !ok || !v.Equal(until) {
		t.Fatalf("snapshot lost key: %v %v", v, ok)
	}
}
