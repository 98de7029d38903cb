package progress

import (
	"maps"
	"slices"
	"time"
)

// Snapshot is the complete item_id -> ItemProgress map for one user at a
// point in time. Version is the max of the constituent item versions.
type Snapshot struct {
	UserID  string                  `json:"user_id"`
	Items   map[string]ItemProgress `json:"items"`
	Version uint64                  `json:"snapshot_version"`
}

// NewSnapshot returns an empty snapshot for userID.
func NewSnapshot(userID string) *Snapshot {
	return &Snapshot{
		UserID: userID,
		Items:  make(map[string]ItemProgress),
	}
}

// Put stores p and keeps Version at the max item version.
func (s *Snapshot) Put(p ItemProgress) {
	if s.Items == nil {
		s.Items = make(map[string]ItemProgress)
	}
	s.Items[p.ItemID] = p
	if p.Version > s.Version {
		s.Version = p.Version
	}
}

// Get returns the progress for itemID.
func (s *Snapshot) Get(itemID string) (ItemProgress, bool) {
	p, ok := s.Items[itemID]
	return p, ok
}

// Len returns the number of items in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Items)
}

// Clone returns a deep copy. ItemProgress is a value type so copying the map
// is sufficient.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		UserID:  s.UserID,
		Items:   maps.Clone(s.Items),
		Version: s.Version,
	}
}

// Recompute resets Version to the max item version.
func (s *Snapshot) Recompute() {
	s.Version = 0
	for _, p := range s.Items {
		if p.Version > s.Version {
			s.Version = p.Version
		}
	}
}

// Due returns the review queue at now: ids of items with DueAt <= now ordered
// by ascending difficulty class, then ascending DueAt, then item id.
func (s *Snapshot) Due(now time.Time) []string {
	due := make([]ItemProgress, 0, len(s.Items))
	for _, p := range s.Items {
		if !p.DueAt.After(now) {
			due = append(due, p)
		}
	}

	SortQueue(due)

	ids := make([]string, len(due))
	for i, p := range due {
		ids[i] = p.ItemID
	}
	return ids
}

// SortQueue orders items the way the review queue presents them.
func SortQueue(items []ItemProgress) {
	slices.SortFunc(items, func(a, b ItemProgress) int {
		if a.DifficultyClass != b.DifficultyClass {
			return int(a.DifficultyClass) - int(b.DifficultyClass)
		}
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		switch {
		case a.ItemID < b.ItemID:
			return -1
		case a.ItemID > b.ItemID:
			return 1
		}
		return 0
	})
}

// NearestDue returns up to n items ordered by ascending DueAt (most overdue
// first), regardless of whether they are due yet.
func (s *Snapshot) NearestDue(n int) []ItemProgress {
	items := slices.Collect(maps.Values(s.Items))
	slices.SortFunc(items, func(a, b ItemProgress) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		switch {
		case a.ItemID < b.ItemID:
			return -1
		case a.ItemID > b.ItemID:
			return 1
		}
		return 0
	})
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	return items
}
