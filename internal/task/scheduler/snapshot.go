package scheduler

import (
	"sort"
)

// Snapshot lists armed triggers sorted by name.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		if it.Next.IsZero() {
			it.Next = s.nextLocked(d)
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	return Snapshot{
		Enabled:      s.cfg.Enabled,
		Running:      s.c != nil,
		Timezone:     s.cfg.Location.String(),
		MisfireGrace: s.cfg.MisfireGrace,
		Schedules:    items,
	}
}
