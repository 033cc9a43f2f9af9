package api

import "net/http"

// Status is the body of GET /api/v1/status.
type Status struct {
	Version string `json:"version"`
	Session string `json:"session,omitempty"`

	QueueLength   int    `json:"queue_length"`
	QueueCapacity int    `json:"queue_capacity"`
	EventsDropped uint64 `json:"events_dropped"`

	Locked    bool `json:"locked"`
	FanLevel  int  `json:"fan_level"`
	FlapLevel int  `json:"flap_level"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := Status{Version: s.deps.Version}
	if s.deps.Session != nil {
		st.Session = s.deps.Session.State().String()
	}
	if q := s.deps.Queue; q != nil {
		st.QueueLength, st.QueueCapacity, st.EventsDropped = q.Len(), q.Cap(), q.Dropped()
	}
	if sh := s.deps.Shared; sh != nil {
		st.Locked, st.FanLevel, st.FlapLevel = sh.Snapshot()
	}
	writeJSON(w, http.StatusOK, st)
}
