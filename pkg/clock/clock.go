package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock is the single source of "now" and timezone resolution.
type Clock interface {
	Now() time.Time
	Location(name string) (*time.Location, error)
}

type systemClock struct {
	mu    sync.RWMutex
	zones map[string]*time.Location
}

// System returns a Clock backed by the wall clock and the host tz database.
func System() Clock {
	return &systemClock{zones: make(map[string]*time.Location)}
}

func (c *systemClock) Now() time.Time {
	return time.Now()
}

func (c *systemClock) Location(name string) (*time.Location, error) {
	return cachedLocation(&c.mu, c.zones, name)
}

// Fixed is a Clock frozen at a given instant. Set moves it.
type Fixed struct {
	mu    sync.RWMutex
	now   time.Time
	zones map[string]*time.Location
}

func NewFixed(now time.Time) *Fixed {
	return &Fixed{now: now, zones: make(map[string]*time.Location)}
}

func (f *Fixed) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

func (f *Fixed) Set(now time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fixed) Location(name string) (*time.Location, error) {
	return cachedLocation(&f.mu, f.zones, name)
}

func cachedLocation(mu *sync.RWMutex, zones map[string]*time.Location, name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if name == "Local" {
		return time.Local, nil
	}

	mu.RLock()
	loc, ok := zones[name]
	mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}

	mu.Lock()
	zones[name] = loc
	mu.Unlock()
	return loc, nil
}
