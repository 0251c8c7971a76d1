package server

import "time"

// Timer purposes. Each room holds at most one live timer per purpose;
// re-arming cancels the predecessor so a purpose can never fire twice.
const (
	timerRound = "round"
	timerBreak = "break"
	timerClose = "close"
)

func timerKey(code, purpose string) string {
	return code + "/" + purpose
}

func (s *Server) armTimer(code, purpose string, d time.Duration, fn func()) {
	key := timerKey(code, purpose)
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}
	s.timers[key] = time.AfterFunc(d, func() {
		s.clearTimer(key)
		fn()
	})
}

func (s *Server) clearTimer(key string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	delete(s.timers, key)
}

func (s *Server) cancelTimer(code, purpose string) {
	key := timerKey(code, purpose)
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

func (s *Server) cancelRoomTimers(code string) {
	s.cancelTimer(code, timerRound)
	s.cancelTimer(code, timerBreak)
	s.cancelTimer(code, timerClose)
}
