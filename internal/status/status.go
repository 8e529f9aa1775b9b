// Package status provides a thread-safe status tracker for the keypad-scanner daemon.
// It is read by the HTTP handlers and by the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/keypad-scanner/internal/keypad"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	Chip        string
	Rows        int
	Cols        int
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	TopicPrefix string
	HTTPAddr    string
}

// Counts tracks activity since startup.
type Counts struct {
	Presses    int
	ByKey      map[rune]int
	Scans      uint64
	ScanErrors uint64
}

func (c Counts) clone() Counts {
	out := c
	out.ByKey = make(map[rune]int, len(c.ByKey))
	for k, v := range c.ByKey {
		out.ByKey[k] = v
	}
	return out
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	LastKey       rune
	HasLastKey    bool
	LastKeyAt     time.Time
	LastScanError string
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu            sync.RWMutex
	snap          Snapshot
	lastHeartbeat time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Counts:    Counts{ByKey: make(map[rune]int)},
		},
		lastHeartbeat: startTime,
	}
}

// RecordKey counts a delivered key press.
func (t *Tracker) RecordKey(e keypad.Event) {
	t.mu.Lock()
	t.snap.LastKey = e.Key
	t.snap.HasLastKey = true
	t.snap.LastKeyAt = e.Timestamp
	t.snap.Counts.Presses++
	t.snap.Counts.ByKey[e.Key]++
	t.mu.Unlock()
}

// RecordScan counts a scan pass and remembers the most recent failure.
func (t *Tracker) RecordScan(err error) {
	t.mu.Lock()
	t.snap.Counts.Scans++
	if err != nil {
		t.snap.Counts.ScanErrors++
		t.snap.LastScanError = err.Error()
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts = t.snap.Counts.clone()
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// CheckHeartbeat returns heartbeat data if interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (t *Tracker) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastHeartbeat) < interval {
		return nil
	}
	t.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(t.snap.StartTime),
		Counts:    t.snap.Counts.clone(),
	}
}
