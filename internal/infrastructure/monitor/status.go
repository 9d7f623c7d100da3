package monitor

import "time"

// Status is the last observed state of the planner's backends.
type Status struct {
	Backends   map[string]bool `json:"backends"`
	Buffer     bool            `json:"buffer"`
	BufferSize int             `json:"buffer_size"`
	LastCheck  time.Time       `json:"last_check"`
}

// Online reports whether every required backend answered.
func (s Status) Online(required []string) bool {
	for _, name := range required {
		if !s.Backends[name] {
			return false
		}
	}
	return true
}
