// Package session keeps one resolver per profile. Each session owns its
// checkpoint table and cross placement guard, and reads and writes a cache
// namespace of the shared store.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ILLUVRSE/placements/placement-engine/internal/cache"
	"github.com/ILLUVRSE/placements/placement-engine/internal/crossplacement"
	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
	"github.com/ILLUVRSE/placements/placement-engine/internal/profile"
	"github.com/ILLUVRSE/placements/placement-engine/internal/resolver"
	"github.com/ILLUVRSE/placements/placement-engine/internal/store"
)

// Backend is the variations API as both the resolver and the profile
// refresh need it.
type Backend interface {
	resolver.Network
	profile.Fetcher
}

type Config struct {
	// MaxProfiles bounds live sessions; zero means unbounded.
	MaxProfiles int
	// IdleTTL evicts sessions not used for this long; zero disables expiry.
	IdleTTL        time.Duration
	DefaultTimeout time.Duration
}

type Deps struct {
	Store     store.KV
	Backend   Backend
	Fallback  resolver.FallbackProvider
	Analytics resolver.AnalyticsSink
	Logger    *slog.Logger
}

// Identity is what a caller proves about itself on each request.
type Identity struct {
	ProfileID string
	SegmentID string
}

type Session struct {
	Resolver *resolver.Resolver
	Profile  *profile.Provider
}

type Manager struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]

	// draining holds evicted sessions whose network work is still running.
	// A profile keeps a single guard until that work has finished.
	drainMu  sync.Mutex
	draining map[string]*Session
}

func NewManager(cfg Config, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		draining: make(map[string]*Session),
	}
	m.sessions = expirable.NewLRU[string, *Session](cfg.MaxProfiles, m.onEvict, cfg.IdleTTL)
	return m
}

// onEvict runs under the LRU's lock, so it only touches drainMu.
func (m *Manager) onEvict(profileID string, s *Session) {
	if s.Resolver.InFlight() == 0 {
		return
	}
	m.drainMu.Lock()
	m.draining[profileID] = s
	m.drainMu.Unlock()
}

// revive returns the draining session for profileID, if any, and forgets
// draining sessions that have gone idle.
func (m *Manager) revive(profileID string) *Session {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	s := m.draining[profileID]
	delete(m.draining, profileID)
	for id, d := range m.draining {
		if d.Resolver.InFlight() == 0 {
			delete(m.draining, id)
		}
	}
	return s
}

// Get returns the session for id, creating it on first use. A segment that
// differs from the one the session knows is recorded.
func (m *Manager) Get(id Identity) (*Session, error) {
	if id.ProfileID == "" {
		return nil, fmt.Errorf("profile id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions.Get(id.ProfileID); ok {
		if id.SegmentID != "" {
			s.Profile.SetSegment(id.SegmentID)
		}
		return s, nil
	}
	if s := m.revive(id.ProfileID); s != nil {
		if id.SegmentID != "" {
			s.Profile.SetSegment(id.SegmentID)
		}
		m.sessions.Add(id.ProfileID, s)
		return s, nil
	}
	s, err := m.newSession(id)
	if err != nil {
		return nil, err
	}
	m.sessions.Add(id.ProfileID, s)
	return s, nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

func (m *Manager) newSession(id Identity) (*Session, error) {
	logger := m.deps.Logger.With("profile_id", id.ProfileID)
	c := cache.New(store.NewNamespaced(m.deps.Store, "profile/"+id.ProfileID), cache.WithLogger(logger))
	guard := crossplacement.NewGuard(c, logger)

	var fetcher profile.Fetcher
	if m.deps.Backend != nil {
		fetcher = m.deps.Backend
	}
	prof := profile.NewProvider(models.Profile{ProfileID: id.ProfileID, SegmentID: id.SegmentID}, fetcher, guard, logger)

	r, err := resolver.New(resolver.Deps{
		Network:        m.deps.Backend,
		Profiles:       prof,
		Cache:          c,
		Guard:          guard,
		Fallback:       m.deps.Fallback,
		Analytics:      m.deps.Analytics,
		Logger:         logger,
		DefaultTimeout: m.cfg.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build resolver for %s: %w", id.ProfileID, err)
	}
	return &Session{Resolver: r, Profile: prof}, nil
}
