package leaderboard

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrBoardNotFound = errors.New("leaderboard not initialized for contest")
)

const defaultNotifyWindow = 50

// Row is one participant's standing on a contest board. Rank is assigned
// on read from the sort order, and permanently by FinalizeRanks.
type Row struct {
	ParticipantID int64  `json:"participant_id"`
	Alias         string `json:"alias,omitempty"`
	Rank          int    `json:"rank"`
	Score         int    `json:"score"`
	Solved        int    `json:"solved"`
	TotalTimeSec  int64  `json:"total_time_sec"`
	PenaltySec    int64  `json:"penalty_sec"`
	Seq           int64  `json:"seq"`
}

// less orders rows by score desc, solved desc, total time asc, penalty asc
// and finally registration order.
func less(a, b *Row) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Solved != b.Solved {
		return a.Solved > b.Solved
	}
	if a.TotalTimeSec != b.TotalTimeSec {
		return a.TotalTimeSec < b.TotalTimeSec
	}
	if a.PenaltySec != b.PenaltySec {
		return a.PenaltySec < b.PenaltySec
	}
	return a.Seq < b.Seq
}

type board struct {
	mu       sync.Mutex
	rows     map[int64]*Row
	frozen   bool
	snapshot []Row
	subs     map[int]chan struct{}
	nextSub  int
}

// Store keeps the authoritative in-memory standings for every active
// contest. Writes carry fully computed rows, so each write replaces the
// participant's entry wholesale.
type Store struct {
	mu           sync.RWMutex
	boards       map[int64]*board
	notifyWindow int
}

// NewStore creates an empty leaderboard store.
func NewStore() *Store {
	return &Store{
		boards:       make(map[int64]*board),
		notifyWindow: defaultNotifyWindow,
	}
}

// Init creates or resets the board for a contest, unfrozen and empty.
func (s *Store) Init(contestID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[contestID] = &board{
		rows: make(map[int64]*Row),
		subs: make(map[int]chan struct{}),
	}
}

// Drop removes a contest board entirely, closing its subscriptions.
func (s *Store) Drop(contestID int64) {
	s.mu.Lock()
	b, ok := s.boards[contestID]
	delete(s.boards, contestID)
	s.mu.Unlock()
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (s *Store) board(contestID int64) (*board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[contestID]
	if !ok {
		return nil, ErrBoardNotFound
	}
	return b, nil
}

// Upsert replaces a participant's row. Subscribers are notified when the
// write lands inside the visible top window of an unfrozen board.
func (s *Store) Upsert(contestID int64, row Row) error {
	b, err := s.board(contestID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	prevRank := b.rankOfLocked(row.ParticipantID)
	copied := row
	b.rows[row.ParticipantID] = &copied
	newRank := b.rankOfLocked(row.ParticipantID)

	if b.frozen {
		return nil
	}
	if (prevRank > 0 && prevRank <= s.notifyWindow) || (newRank > 0 && newRank <= s.notifyWindow) {
		b.notifyLocked()
	}
	return nil
}

// Remove deletes a participant from the board, used on disqualification.
// The removal shows through even on a frozen board.
func (s *Store) Remove(contestID, participantID int64) error {
	b, err := s.board(contestID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.rows[participantID]; !ok {
		return nil
	}
	delete(b.rows, participantID)
	if b.frozen {
		kept := b.snapshot[:0]
		for _, r := range b.snapshot {
			if r.ParticipantID != participantID {
				kept = append(kept, r)
			}
		}
		for i := range kept {
			kept[i].Rank = i + 1
		}
		b.snapshot = kept
	}
	b.notifyLocked()
	return nil
}

// TopN returns the top n rows of the visible board. A frozen board serves
// the snapshot taken at freeze time.
func (s *Store) TopN(contestID int64, n int) ([]Row, error) {
	rows, err := s.visible(contestID)
	if err != nil {
		return nil, err
	}
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows, nil
}

// Page returns one page of the visible board plus the total row count.
func (s *Store) Page(contestID int64, page, size int) ([]Row, int, error) {
	rows, err := s.visible(contestID)
	if err != nil {
		return nil, 0, err
	}
	total := len(rows)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []Row{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return rows[start:end], total, nil
}

// Freeze snapshots the current standings as the visible board. Later
// writes keep accumulating underneath but stop showing. Freezing twice
// keeps the first snapshot.
func (s *Store) Freeze(contestID int64) error {
	b, err := s.board(contestID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return nil
	}
	b.snapshot = b.sortedLocked()
	b.frozen = true
	return nil
}

// Frozen reports whether the board currently serves a freeze snapshot.
func (s *Store) Frozen(contestID int64) (bool, error) {
	b, err := s.board(contestID)
	if err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozen, nil
}

// FinalRows recomputes standings over everything accumulated, ignoring any
// freeze, without changing what the board serves. Callers persist these rows
// first and flip visibility through FinalizeRanks once the write committed.
func (s *Store) FinalRows(contestID int64) ([]Row, error) {
	b, err := s.board(contestID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedLocked(), nil
}

// FinalizeRanks unfreezes the board, recomputes standings over everything
// accumulated, and returns rows carrying their permanent final ranks.
func (s *Store) FinalizeRanks(contestID int64) ([]Row, error) {
	b, err := s.board(contestID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = false
	b.snapshot = nil
	rows := b.sortedLocked()
	for _, r := range rows {
		if stored, ok := b.rows[r.ParticipantID]; ok {
			stored.Rank = r.Rank
		}
	}
	b.notifyLocked()
	return rows, nil
}

// Subscribe returns a channel that coalesces change notifications for a
// contest board and a cancel function releasing the subscription.
func (s *Store) Subscribe(contestID int64) (<-chan struct{}, func(), error) {
	b, err := s.board(contestID)
	if err != nil {
		return nil, nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (s *Store) visible(contestID int64) ([]Row, error) {
	b, err := s.board(contestID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		out := make([]Row, len(b.snapshot))
		copy(out, b.snapshot)
		return out, nil
	}
	return b.sortedLocked(), nil
}

func (b *board) sortedLocked() []Row {
	rows := make([]Row, 0, len(b.rows))
	for _, r := range b.rows {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return less(&rows[i], &rows[j]) })
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

func (b *board) rankOfLocked(participantID int64) int {
	target, ok := b.rows[participantID]
	if !ok {
		return 0
	}
	rank := 1
	for id, r := range b.rows {
		if id == participantID {
			continue
		}
		if less(r, target) {
			rank++
		}
	}
	return rank
}

func (b *board) notifyLocked() {
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
