package memory

import "github.com/coachpo/kino/internal/domain/kino"

// corrupt overwrites the raw entry for key.
func (s *DrawStore) corrupt(key kino.PageKey, data []byte) {
	s.mu.Lock()
	s.entries[key] = append([]byte(nil), data...)
	s.mu.Unlock()
}
