package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func mustApply(t *testing.T, s *Store, ev Event) {
	t.Helper()
	if err := s.Apply(ev); err != nil {
		t.Fatalf("Apply(%v %q) error: %v", ev.Kind, ev.Checker, err)
	}
}

func created(seq uint64, name string, spec Spec) Event {
	return Event{Seq: seq, Kind: KindSpecCreated, Checker: name, Group: spec.Group, Spec: &spec}
}

func appended(seq uint64, name string, st Status) Event {
	return Event{Seq: seq, Kind: KindStatusAppended, Checker: name, Status: &st}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"valid minimal", Spec{Description: "a service"}, false},
		{"valid with url", Spec{Description: "a service", URL: "https://example.com"}, false},
		{"valid with group", Spec{Description: "a service", Group: "prod"}, false},
		{"empty description", Spec{}, true},
		{"whitespace description", Spec{Description: "   "}, true},
		{"valid non-http url", Spec{Description: "x", URL: "tcp://db.internal:5432"}, false},
		{"relative url", Spec{Description: "x", URL: "/health"}, true},
		{"schemeless url", Spec{Description: "x", URL: "example.com/health"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := New(0)
	spec := Spec{Description: "my blog", URL: "https://blog.example.com", Group: "websites"}
	mustApply(t, s, created(1, "blog", spec))

	if !s.Exists("blog") {
		t.Error("Exists(blog) = false after create")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %v, want 1", s.Len())
	}

	got, err := s.GetSpec("blog")
	if err != nil {
		t.Fatalf("GetSpec() error: %v", err)
	}
	if got != spec {
		t.Errorf("GetSpec() = %+v, want %+v", got, spec)
	}

	if _, err := s.GetSpec("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSpec(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ApplyCreateDuplicate(t *testing.T) {
	s := New(0)
	mustApply(t, s, created(1, "a", Spec{Description: "x"}))
	if err := s.Apply(created(2, "a", Spec{Description: "y"})); err == nil {
		t.Error("Apply() of duplicate create did not error")
	}
}

func TestStore_UpdateSpec(t *testing.T) {
	s := New(0)
	mustApply(t, s, created(1, "a", Spec{Description: "old"}))

	updated := Spec{Description: "new", Group: "prod"}
	mustApply(t, s, Event{Seq: 2, Kind: KindSpecUpdated, Checker: "a", Spec: &updated})

	got, err := s.GetSpec("a")
	if err != nil {
		t.Fatalf("GetSpec() error: %v", err)
	}
	if got != updated {
		t.Errorf("GetSpec() = %+v, want %+v", got, updated)
	}
}

func TestStore_Delete(t *testing.T) {
	s := New(0)
	mustApply(t, s, created(1, "a", Spec{Description: "x"}))
	mustApply(t, s, appended(2, "a", status(0)))
	mustApply(t, s, Event{Seq: 3, Kind: KindSpecDeleted, Checker: "a"})

	if s.Exists("a") {
		t.Error("Exists(a) = true after delete")
	}
	if _, err := s.GetChecker("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetChecker() error = %v, want ErrNotFound", err)
	}
	if err := s.Apply(Event{Seq: 4, Kind: KindSpecDeleted, Checker: "a"}); err == nil {
		t.Error("Apply() of second delete did not error")
	}

	// recreate under the same name starts with empty history
	mustApply(t, s, created(5, "a", Spec{Description: "again"}))
	_, total, err := s.History("a", 0, 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if total != 0 {
		t.Errorf("History() total = %v after recreate, want 0", total)
	}
}

func TestStore_LatestAndHistory(t *testing.T) {
	s := New(0)
	mustApply(t, s, created(1, "a", Spec{Description: "x"}))

	latest, err := s.Latest("a")
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if latest != nil {
		t.Errorf("Latest() = %+v before any status, want nil", latest)
	}

	for i := 0; i < 5; i++ {
		mustApply(t, s, appended(uint64(i+2), "a", status(i)))
	}

	latest, err = s.Latest("a")
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if latest == nil || !latest.Time.Equal(status(4).Time) {
		t.Errorf("Latest() = %+v, want status at %v", latest, status(4).Time)
	}

	page, total, err := s.History("a", 1, 2)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if total != 5 {
		t.Errorf("History() total = %v, want 5", total)
	}
	if len(page) != 2 || !page[0].Time.Equal(status(1).Time) {
		t.Errorf("History(1, 2) = %+v, want statuses 1..2", page)
	}
}

func TestStore_HistoryEviction(t *testing.T) {
	s := New(3)
	mustApply(t, s, created(1, "a", Spec{Description: "x"}))
	for i := 0; i < 5; i++ {
		mustApply(t, s, appended(uint64(i+2), "a", status(i)))
	}

	all, total, err := s.History("a", 0, 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if total != 3 {
		t.Errorf("History() total = %v, want 3", total)
	}
	if !all[0].Time.Equal(status(2).Time) {
		t.Errorf("oldest retained status at %v, want %v", all[0].Time, status(2).Time)
	}
}

func TestStore_ListOrderAndFilter(t *testing.T) {
	s := New(0)
	mustApply(t, s, created(1, "c", Spec{Description: "x", Group: "one"}))
	mustApply(t, s, created(2, "a", Spec{Description: "x", Group: "two"}))
	mustApply(t, s, created(3, "b", Spec{Description: "x", Group: "one"}))
	mustApply(t, s, appended(4, "a", status(0)))

	all := s.List("")
	names := make([]string, len(all))
	for i, c := range all {
		names[i] = c.Name
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("List() order = %v, want %v", names, want)
		}
	}

	if all[0].Latest != nil {
		t.Error("List()[0].Latest != nil for checker without statuses")
	}
	if all[1].Latest == nil {
		t.Error("List()[1].Latest = nil for checker with statuses")
	}

	one := s.List("one")
	if len(one) != 2 {
		t.Fatalf("List(one) = %v items, want 2", len(one))
	}
	if one[0].Name != "c" || one[1].Name != "b" {
		t.Errorf("List(one) = %v, want [c b]", one)
	}
}

func TestStore_GetCheckerIsACopy(t *testing.T) {
	s := New(0)
	mustApply(t, s, created(1, "a", Spec{Description: "x"}))
	mustApply(t, s, appended(2, "a", status(0)))

	c, err := s.GetChecker("a")
	if err != nil {
		t.Fatalf("GetChecker() error: %v", err)
	}
	c.Statuses[0].Message = "mutated"

	again, _ := s.GetChecker("a")
	if again.Statuses[0].Message == "mutated" {
		t.Error("GetChecker() aliased internal history")
	}
}

func TestStore_ExportRestoreRoundTrip(t *testing.T) {
	s := New(0)
	mustApply(t, s, created(1, "b", Spec{Description: "x"}))
	mustApply(t, s, created(2, "a", Spec{Description: "y", Group: "g"}))
	mustApply(t, s, appended(3, "b", status(0)))
	mustApply(t, s, appended(4, "b", status(1)))

	checkers, order := s.Export()

	restored := New(0)
	restored.Restore(checkers, order)

	if restored.Len() != 2 {
		t.Fatalf("restored Len() = %v, want 2", restored.Len())
	}
	list := restored.List("")
	if list[0].Name != "b" || list[1].Name != "a" {
		t.Errorf("restored order = %v, want [b a]", list)
	}
	_, total, err := restored.History("b", 0, 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if total != 2 {
		t.Errorf("restored history total = %v, want 2", total)
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := New(0)
	const checkers = 8
	const perChecker = 100

	for i := 0; i < checkers; i++ {
		mustApply(t, s, created(uint64(i+1), fmt.Sprintf("c%d", i), Spec{Description: "x"}))
	}

	var seq uint64 = checkers
	var seqMu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < checkers; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for j := 0; j < perChecker; j++ {
				lock := s.WriterLock(name)
				lock.Lock()
				seqMu.Lock()
				seq++
				ev := appended(seq, name, Status{
					Time:    time.Date(2026, 1, 1, 0, 0, 0, j, time.UTC),
					Up:      true,
					Message: "ok",
				})
				seqMu.Unlock()
				if err := s.Apply(ev); err != nil {
					t.Errorf("Apply() error: %v", err)
				}
				lock.Unlock()
			}
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	for i := 0; i < checkers; i++ {
		name := fmt.Sprintf("c%d", i)
		all, total, err := s.History(name, 0, 0)
		if err != nil {
			t.Fatalf("History(%s) error: %v", name, err)
		}
		if total != perChecker {
			t.Errorf("History(%s) total = %v, want %v", name, total, perChecker)
		}
		for j := 1; j < len(all); j++ {
			if all[j].Time.Before(all[j-1].Time) {
				t.Fatalf("History(%s) out of order at %d", name, j)
			}
		}
	}
}
