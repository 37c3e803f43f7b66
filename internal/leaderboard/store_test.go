package leaderboard

import (
	"errors"
	"testing"
)

func TestStoreUnknownBoard(t *testing.T) {
	t.Parallel()
	s := NewStore()
	if err := s.Upsert(99, Row{ParticipantID: 1}); !errors.Is(err, ErrBoardNotFound) {
		t.Errorf("Upsert on missing board: err = %v", err)
	}
	if _, err := s.TopN(99, 10); !errors.Is(err, ErrBoardNotFound) {
		t.Errorf("TopN on missing board: err = %v", err)
	}
	if _, _, err := s.Subscribe(99); !errors.Is(err, ErrBoardNotFound) {
		t.Errorf("Subscribe on missing board: err = %v", err)
	}
}

func TestStoreTieBreakOrder(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Init(1)

	// Deliberately inserted out of final order.
	rows := []Row{
		{ParticipantID: 10, Score: 100, Solved: 1, TotalTimeSec: 900, Seq: 3},
		{ParticipantID: 11, Score: 300, Solved: 3, TotalTimeSec: 4000, Seq: 1},
		{ParticipantID: 12, Score: 100, Solved: 1, TotalTimeSec: 500, Seq: 4},
		{ParticipantID: 13, Score: 100, Solved: 1, TotalTimeSec: 900, PenaltySec: 1200, Seq: 2},
		{ParticipantID: 14, Score: 100, Solved: 1, TotalTimeSec: 900, Seq: 1},
	}
	for _, r := range rows {
		if err := s.Upsert(1, r); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got, err := s.TopN(1, 0)
	if err != nil {
		t.Fatalf("TopN: %v", err)
	}
	wantOrder := []int64{11, 12, 14, 10, 13}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d rows, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].ParticipantID != id {
			t.Errorf("rank %d: participant %d, want %d", i+1, got[i].ParticipantID, id)
		}
		if got[i].Rank != i+1 {
			t.Errorf("rank %d carries Rank=%d", i+1, got[i].Rank)
		}
	}
}

func TestStoreTopNLimit(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Init(1)
	for i := int64(1); i <= 5; i++ {
		s.Upsert(1, Row{ParticipantID: i, Score: int(i * 10), Seq: i})
	}
	got, err := s.TopN(1, 2)
	if err != nil {
		t.Fatalf("TopN: %v", err)
	}
	if len(got) != 2 || got[0].ParticipantID != 5 || got[1].ParticipantID != 4 {
		t.Errorf("TopN(2) = %+v", got)
	}
}

func TestStorePageBounds(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Init(1)
	for i := int64(1); i <= 5; i++ {
		s.Upsert(1, Row{ParticipantID: i, Score: int(100 - i), Seq: i})
	}

	rows, total, err := s.Page(1, 2, 2)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if total != 5 || len(rows) != 2 || rows[0].Rank != 3 {
		t.Errorf("page 2 size 2: total=%d rows=%+v", total, rows)
	}

	rows, total, err = s.Page(1, 0, 0)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if total != 5 || len(rows) != 5 {
		t.Errorf("defaulted page: total=%d len=%d", total, len(rows))
	}

	rows, total, err = s.Page(1, 9, 10)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if total != 5 || len(rows) != 0 {
		t.Errorf("out of range page: total=%d rows=%+v", total, rows)
	}
}

func TestStoreFreezeServesSnapshot(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Init(1)
	s.Upsert(1, Row{ParticipantID: 1, Score: 100, Seq: 1})
	s.Upsert(1, Row{ParticipantID: 2, Score: 50, Seq: 2})

	if err := s.Freeze(1); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	frozen, err := s.Frozen(1)
	if err != nil || !frozen {
		t.Fatalf("Frozen = %v, %v", frozen, err)
	}

	// Writes after the freeze accumulate but stay invisible.
	s.Upsert(1, Row{ParticipantID: 2, Score: 500, Seq: 2})
	got, err := s.TopN(1, 0)
	if err != nil {
		t.Fatalf("TopN: %v", err)
	}
	if got[0].ParticipantID != 1 || got[1].Score != 50 {
		t.Errorf("frozen board leaked post-freeze write: %+v", got)
	}

	// Second freeze keeps the first snapshot.
	if err := s.Freeze(1); err != nil {
		t.Fatalf("second Freeze: %v", err)
	}
	got, _ = s.TopN(1, 0)
	if got[0].ParticipantID != 1 {
		t.Errorf("re-freeze replaced the snapshot: %+v", got)
	}

	final, err := s.FinalizeRanks(1)
	if err != nil {
		t.Fatalf("FinalizeRanks: %v", err)
	}
	if final[0].ParticipantID != 2 || final[0].Rank != 1 || final[1].Rank != 2 {
		t.Errorf("FinalizeRanks = %+v, want participant 2 first", final)
	}
	if frozen, _ := s.Frozen(1); frozen {
		t.Error("board should be unfrozen after FinalizeRanks")
	}
}

func TestStoreRemoveThroughFreeze(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Init(1)
	s.Upsert(1, Row{ParticipantID: 1, Score: 300, Seq: 1})
	s.Upsert(1, Row{ParticipantID: 2, Score: 200, Seq: 2})
	s.Upsert(1, Row{ParticipantID: 3, Score: 100, Seq: 3})
	s.Freeze(1)

	if err := s.Remove(1, 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, err := s.TopN(1, 0)
	if err != nil {
		t.Fatalf("TopN: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("removed participant still visible: %+v", got)
	}
	if got[0].ParticipantID != 1 || got[0].Rank != 1 || got[1].ParticipantID != 3 || got[1].Rank != 2 {
		t.Errorf("snapshot not re-ranked after removal: %+v", got)
	}

	// Removing an absent participant is a no-op.
	if err := s.Remove(1, 42); err != nil {
		t.Errorf("Remove absent participant: %v", err)
	}
}

func TestStoreSubscribeCoalesces(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Init(1)
	ch, cancel, err := s.Subscribe(1)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	s.Upsert(1, Row{ParticipantID: 1, Score: 10, Seq: 1})
	s.Upsert(1, Row{ParticipantID: 1, Score: 20, Seq: 1})
	s.Upsert(1, Row{ParticipantID: 1, Score: 30, Seq: 1})

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-ch:
		t.Fatal("notifications must coalesce into one")
	default:
	}
}

func TestStoreSubscribeCancelAndDrop(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Init(1)

	ch1, cancel1, _ := s.Subscribe(1)
	cancel1()
	if _, ok := <-ch1; ok {
		t.Error("cancelled subscription channel should be closed")
	}
	cancel1() // second cancel is safe

	ch2, cancel2, _ := s.Subscribe(1)
	defer cancel2()
	s.Drop(1)
	if _, ok := <-ch2; ok {
		t.Error("Drop should close live subscriptions")
	}
	if _, err := s.TopN(1, 0); !errors.Is(err, ErrBoardNotFound) {
		t.Errorf("dropped board still readable: %v", err)
	}
}

func TestStoreUpsertNotifiesOnlyTopWindow(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.notifyWindow = 2
	s.Init(1)
	s.Upsert(1, Row{ParticipantID: 1, Score: 300, Seq: 1})
	s.Upsert(1, Row{ParticipantID: 2, Score: 200, Seq: 2})

	ch, cancel, _ := s.Subscribe(1)
	defer cancel()

	// Rank 3 write lands outside the window.
	s.Upsert(1, Row{ParticipantID: 3, Score: 100, Seq: 3})
	select {
	case <-ch:
		t.Fatal("write outside the notify window should stay quiet")
	default:
	}

	// Climbing into the window notifies.
	s.Upsert(1, Row{ParticipantID: 3, Score: 250, Seq: 3})
	select {
	case <-ch:
	default:
		t.Fatal("write entering the notify window should notify")
	}
}

func TestStoreFrozenBoardSuppressesNotify(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Init(1)
	s.Upsert(1, Row{ParticipantID: 1, Score: 10, Seq: 1})
	s.Freeze(1)

	ch, cancel, _ := s.Subscribe(1)
	defer cancel()
	s.Upsert(1, Row{ParticipantID: 1, Score: 20, Seq: 1})
	select {
	case <-ch:
		t.Fatal("frozen board must not notify on upsert")
	default:
	}
}
