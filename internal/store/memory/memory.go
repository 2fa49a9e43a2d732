// Package memory provides in-memory implementations of the pipeline's
// store contracts. They back the test suites and local development
// without a database; the PostgreSQL repositories are the production
// implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/evairo/aqmon/backend/internal/alert"
	"github.com/evairo/aqmon/backend/internal/checkpoint"
	"github.com/evairo/aqmon/backend/internal/forecast"
	"github.com/evairo/aqmon/backend/internal/reading"
	"github.com/evairo/aqmon/backend/internal/station"
)

// StationStore is an in-memory station.Store.
type StationStore struct {
	mu       sync.RWMutex
	stations map[string]station.Station
}

// NewStationStore creates an empty in-memory station store.
func NewStationStore() *StationStore {
	return &StationStore{stations: make(map[string]station.Station)}
}

var _ station.Store = (*StationStore)(nil)

// Get returns the station or nil when absent.
func (s *StationStore) Get(_ context.Context, stationIdx string) (*station.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stations[stationIdx]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// Upsert inserts or overwrites metadata, preserving latest_reading_at.
func (s *StationStore) Upsert(_ context.Context, st *station.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored, exists := s.stations[st.StationIdx]
	if !exists {
		stored = station.Station{StationIdx: st.StationIdx, CreatedAt: now}
	}
	stored.Name = st.Name
	stored.City = st.City
	stored.Latitude = st.Latitude
	stored.Longitude = st.Longitude
	stored.Active = st.Active
	stored.UpdatedAt = now
	s.stations[st.StationIdx] = stored
	return nil
}

// Active returns all active stations sorted by index.
func (s *StationStore) Active(_ context.Context) ([]station.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []station.Station
	for _, st := range s.stations {
		if st.Active {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationIdx < out[j].StationIdx })
	return out, nil
}

// ByCity returns active stations in a city.
func (s *StationStore) ByCity(_ context.Context, city string) ([]station.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []station.Station
	for _, st := range s.stations {
		if st.Active && st.City == city {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationIdx < out[j].StationIdx })
	return out, nil
}

// AdvanceLatestReading moves latest_reading_at forward to ts.
func (s *StationStore) AdvanceLatestReading(_ context.Context, stationIdx string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stations[stationIdx]
	if !ok {
		return nil
	}
	if st.LatestReadingAt == nil || st.LatestReadingAt.Before(ts) {
		t := ts
		st.LatestReadingAt = &t
		s.stations[stationIdx] = st
	}
	return nil
}

type readingKey struct {
	stationIdx string
	ts         time.Time
}

// ReadingStore is an in-memory reading.Store.
type ReadingStore struct {
	mu       sync.RWMutex
	readings map[readingKey]reading.Reading
}

// NewReadingStore creates an empty in-memory reading store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{readings: make(map[readingKey]reading.Reading)}
}

var _ reading.Store = (*ReadingStore)(nil)

// Get returns the reading for (station_idx, ts) or nil when absent.
func (s *ReadingStore) Get(_ context.Context, stationIdx string, ts time.Time) (*reading.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rd, ok := s.readings[readingKey{stationIdx, ts.UTC()}]
	if !ok {
		return nil, nil
	}
	return &rd, nil
}

// Upsert inserts or overwrites keyed by (station_idx, ts).
func (s *ReadingStore) Upsert(_ context.Context, rd *reading.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings[readingKey{rd.StationIdx, rd.TS.UTC()}] = *rd
	return nil
}

// LatestByStation returns the most recent reading for a station.
func (s *ReadingStore) LatestByStation(_ context.Context, stationIdx string) (*reading.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *reading.Reading
	for key, rd := range s.readings {
		if key.stationIdx != stationIdx {
			continue
		}
		if latest == nil || rd.TS.After(latest.TS) {
			r := rd
			latest = &r
		}
	}
	return latest, nil
}

// Since returns readings for a station from ts onward, ascending.
func (s *ReadingStore) Since(_ context.Context, stationIdx string, ts time.Time) ([]reading.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []reading.Reading
	for key, rd := range s.readings {
		if key.stationIdx == stationIdx && !rd.TS.Before(ts) {
			out = append(out, rd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

// Count returns the number of stored readings.
func (s *ReadingStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// Ledger is an in-memory checkpoint.Ledger.
type Ledger struct {
	mu          sync.RWMutex
	checkpoints []checkpoint.Checkpoint
	nextID      int64
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{nextID: 1}
}

var _ checkpoint.Ledger = (*Ledger)(nil)

// Record appends a new checkpoint.
func (l *Ledger) Record(_ context.Context, cp *checkpoint.Checkpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp.ID = l.nextID
	l.nextID++
	l.checkpoints = append(l.checkpoints, *cp)
	return nil
}

// Latest returns the checkpoint with the maximum target hour, ties
// broken by created_at descending.
func (l *Ledger) Latest(_ context.Context) (*checkpoint.Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var latest *checkpoint.Checkpoint
	for i := range l.checkpoints {
		cp := l.checkpoints[i]
		if latest == nil ||
			cp.TargetHour.After(latest.TargetHour) ||
			(cp.TargetHour.Equal(latest.TargetHour) && cp.CreatedAt.After(latest.CreatedAt)) {
			c := cp
			latest = &c
		}
	}
	return latest, nil
}

// Recent returns up to limit checkpoints, newest first.
func (l *Ledger) Recent(_ context.Context, limit int) ([]checkpoint.Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]checkpoint.Checkpoint, len(l.checkpoints))
	copy(out, l.checkpoints)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TargetHour.Equal(out[j].TargetHour) {
			return out[i].TargetHour.After(out[j].TargetHour)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of ledger entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.checkpoints)
}

// ForecastStore is an in-memory forecast.Store.
type ForecastStore struct {
	mu        sync.RWMutex
	forecasts map[forecast.Key]forecast.Forecast
}

// NewForecastStore creates an empty in-memory forecast store.
func NewForecastStore() *ForecastStore {
	return &ForecastStore{forecasts: make(map[forecast.Key]forecast.Forecast)}
}

var _ forecast.Store = (*ForecastStore)(nil)

// ForDays returns existing forecasts for the given stations and days.
func (s *ForecastStore) ForDays(_ context.Context, stationIdxs []string, days []time.Time) (map[forecast.Key]forecast.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[forecast.Key]bool)
	for _, idx := range stationIdxs {
		for _, d := range days {
			wanted[forecast.KeyOf(idx, d)] = true
		}
	}

	out := make(map[forecast.Key]forecast.Forecast)
	for key, f := range s.forecasts {
		if wanted[key] {
			out[key] = f
		}
	}
	return out, nil
}

// UpsertBatch inserts or overwrites forecasts keyed by (station_idx, day).
func (s *ForecastStore) UpsertBatch(_ context.Context, forecasts []forecast.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range forecasts {
		s.forecasts[forecast.KeyOf(f.StationIdx, f.Day)] = f
	}
	return nil
}

// Count returns the number of stored forecasts.
func (s *ForecastStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.forecasts)
}

// SubscriptionStore is an in-memory alert.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs []alert.Subscription
}

// NewSubscriptionStore creates an in-memory subscription store.
func NewSubscriptionStore(subs ...alert.Subscription) *SubscriptionStore {
	return &SubscriptionStore{subs: subs}
}

var _ alert.SubscriptionStore = (*SubscriptionStore)(nil)

// Active returns all active subscriptions.
func (s *SubscriptionStore) Active(_ context.Context) ([]alert.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []alert.Subscription
	for _, sub := range s.subs {
		if sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

// AuditStore is an in-memory alert.AuditStore.
type AuditStore struct {
	mu            sync.RWMutex
	notifications []alert.Notification
	nextID        int64
}

// NewAuditStore creates an empty in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

var _ alert.AuditStore = (*AuditStore)(nil)

// Record appends one delivery audit entry.
func (s *AuditStore) Record(_ context.Context, n *alert.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = s.nextID
	s.nextID++
	s.notifications = append(s.notifications, *n)
	return nil
}

// LastNotified returns when the (subscription, station) pair was last
// notified.
func (s *AuditStore) LastNotified(_ context.Context, subscriptionID int64, stationIdx string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *time.Time
	for _, n := range s.notifications {
		if n.SubscriptionID != subscriptionID || n.StationIdx != stationIdx {
			continue
		}
		if last == nil || n.SentAt.After(*last) {
			t := n.SentAt
			last = &t
		}
	}
	return last, nil
}

// Notifications returns a copy of all recorded notifications.
func (s *AuditStore) Notifications() []alert.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]alert.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}
