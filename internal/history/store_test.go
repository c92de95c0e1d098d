package history

import (
	"errors"
	"sync"
	"testing"

	"github.com/tbourn/go-content-review/internal/domain"
)

func res(id string) domain.AnalysisResult { return domain.AnalysisResult{ID: id, Text: id} }

func TestAppend_NewestFirst(t *testing.T) {
	s := New()
	s.Append(res("A"))
	s.Append(res("B"))
	s.Append(res("C"))

	got := s.List()
	if len(got) != 3 || got[0].ID != "C" || got[1].ID != "B" || got[2].ID != "A" {
		t.Fatalf("order=%v", got)
	}
	if s.Len() != 3 {
		t.Fatalf("len=%d", s.Len())
	}
}

func TestList_IsCopy(t *testing.T) {
	s := New()
	s.Append(res("A"))
	l := s.List()
	l[0].ID = "mutated"
	if s.List()[0].ID != "A" {
		t.Fatal("List must return a copy")
	}
}

func TestGet(t *testing.T) {
	s := New()
	s.Append(res("A"))
	if r, err := s.Get("A"); err != nil || r.ID != "A" {
		t.Fatalf("got %v %v", r, err)
	}
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestSelect(t *testing.T) {
	s := New()
	a := res("A")
	s.Append(a)

	if _, ok := s.Selected(); ok {
		t.Fatal("expected no selection initially")
	}
	if err := s.Select(&a); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got, ok := s.Selected(); !ok || got.ID != "A" {
		t.Fatalf("selected=%v ok=%v", got, ok)
	}

	stranger := res("Z")
	if err := s.Select(&stranger); !errors.Is(err, ErrNotInHistory) {
		t.Fatalf("err=%v", err)
	}
	if got, _ := s.Selected(); got.ID != "A" {
		t.Fatal("rejected select must keep previous selection")
	}

	if err := s.Select(nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := s.Selected(); ok {
		t.Fatal("expected selection cleared")
	}
}

func TestSelectID(t *testing.T) {
	s := New()
	s.Append(res("A"))
	if err := s.SelectID("A"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectID(""); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Selected(); ok {
		t.Fatal("empty id should clear")
	}
	if err := s.SelectID("nope"); !errors.Is(err, ErrNotInHistory) {
		t.Fatalf("err=%v", err)
	}
}

func TestClear(t *testing.T) {
	s := New()
	a := res("A")
	s.Append(a)
	_ = s.Select(&a)
	s.Clear()
	if s.Len() != 0 {
		t.Fatal("expected empty history")
	}
	if _, ok := s.Selected(); ok {
		t.Fatal("expected no selection")
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(res("x"))
			_ = s.List()
		}()
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Fatalf("len=%d", s.Len())
	}
}
