package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neurlang/fakevoice/analysis"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)

	in := &Record{
		ID:             "abc",
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		FileName:       "clip.wav",
		FakePercentage: 42.5,
		Probabilities:  []float64{0.575, 0.2, 0.225},
		FrameTable:     []analysis.FrameRow{{Frame: 1, FakeProbability: 3.5}},
		Figures:        map[string]string{"timeline": "/static/abc/timeline.png"},
	}
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FakePercentage != 42.5 || got.FileName != "clip.wav" {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, in.CreatedAt)
	}
	if len(got.FrameTable) != 1 || got.FrameTable[0].FakeProbability != 3.5 {
		t.Errorf("FrameTable = %v", got.FrameTable)
	}
	if got.Figures["timeline"] != "/static/abc/timeline.png" {
		t.Errorf("Figures = %v", got.Figures)
	}
}

func TestGet_NotFound(t *testing.T) {
	if _, err := openMem(t).Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPut_RequiresID(t *testing.T) {
	if err := openMem(t).Put(context.Background(), &Record{}); err == nil {
		t.Error("Put without ID should fail")
	}
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := &Record{ID: fmt.Sprintf("r%d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Put(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"r4", "r3", "r2"} {
		if got[i].ID != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestPing(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping open: %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping after Close should fail")
	}
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Error("Open without Dir should fail")
	}
}
