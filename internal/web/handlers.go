package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/SunGo/internal/debug"
	"github.com/cjeanneret/SunGo/internal/logic/tracker"
)

const (
	// maxBodyBytes caps POST bodies; a command is a few bytes.
	maxBodyBytes = 1 << 10
	// CommandRate and CommandBurst bound how fast remote commands are accepted.
	CommandRate  = rate.Limit(1)
	CommandBurst = 3
)

// Tracker is the part of the controller exposed over HTTP.
type Tracker interface {
	Snapshot() tracker.Snapshot
	Submit(cmd tracker.Command) error
}

// Settings is the tuning reported by GET /config.
type Settings struct {
	PanMode            string `json:"pan_mode"`
	SearchTol          int    `json:"search_tol"`
	TrackDiff          int    `json:"track_diff"`
	LowRead            int    `json:"low_read"`
	LowTimes           int    `json:"low_times"`
	SearchStep         int    `json:"search_step"`
	SearchLoops        int    `json:"search_loops"`
	TrackStep          int    `json:"track_step"`
	SearchTilt         int    `json:"search_tilt"`
	NorthIncreasesTilt bool   `json:"north_increases_tilt"`
	ReadDelayMs        int64  `json:"read_delay_ms"`
	SleepOnMs          int64  `json:"sleep_on_ms"`
	SleepOffMs         int64  `json:"sleep_off_ms"`
}

// SettingsFrom builds the /config payload from the controller tuning.
func SettingsFrom(panMode string, p tracker.Params) Settings {
	return Settings{
		PanMode:            panMode,
		SearchTol:          p.SearchTol,
		TrackDiff:          p.TrackDiff,
		LowRead:            p.LowRead,
		LowTimes:           p.LowTimes,
		SearchStep:         p.SearchStep,
		SearchLoops:        p.SearchLoops,
		TrackStep:          p.TrackStep,
		SearchTilt:         p.SearchTilt,
		NorthIncreasesTilt: p.NorthIncreasesTilt,
		ReadDelayMs:        p.ReadDelay.Milliseconds(),
		SleepOnMs:          p.SleepOn.Milliseconds(),
		SleepOffMs:         p.SleepOff.Milliseconds(),
	}
}

// CommandRequest is the POST /command body.
type CommandRequest struct {
	Command string `json:"command"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Tracker     Tracker
	Settings    Settings
	limiter     *rate.Limiter
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If t is nil, /status and /command answer 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, t Tracker, settings Settings, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Tracker:     t,
		Settings:    settings,
		limiter:     rate.NewLimiter(CommandRate, CommandBurst),
		staticFS:    staticFS,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Verbose("web: encode response: %v", err)
	}
}

// HandleConfig returns the tracker tuning as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings)
}

// HandleStatus returns the latest tracker snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Tracker == nil {
		http.Error(w, "tracker not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Tracker.Snapshot())
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCommand handles POST /command: on, off or search.
// Commands are queued for the next control cycle; 202 means queued, not done.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	cmd, err := tracker.ParseCommand(req.Command)
	if err != nil {
		http.Error(w, "command must be on, off or search", http.StatusBadRequest)
		return
	}

	if h.Tracker == nil {
		http.Error(w, "tracker not running", http.StatusServiceUnavailable)
		return
	}
	if !h.limiter.Allow() {
		http.Error(w, "too many commands", http.StatusTooManyRequests)
		return
	}

	if err := h.Tracker.Submit(cmd); err != nil {
		if errors.Is(err, tracker.ErrQueueFull) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Broadcaster.Broadcast("info", "command "+cmd.String()+" queued")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "command": cmd.String()})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
