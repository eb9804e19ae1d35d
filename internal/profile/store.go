// Package profile holds the in-memory configuration consulted by the
// policy resolver: named process profiles, default rules, ProBalance
// config, game/exclude/throttle lists, and the memory-reaper config
// (component E).
package profile

import (
	"strings"
	"sync"

	"github.com/corebalance/corebalance/internal/model"
)

// Store is the single source of truth for profile-store state, guarded by
// one read-write lock. Readers take a snapshot copy per tick;
// writers (the external config layer) take the lock briefly.
type Store struct {
	mu sync.RWMutex

	profiles     []model.TargetProfile
	defaultRules model.DefaultRules
	proBalance   model.ProBalanceConfig
	gameList     []string
	excludeList  []string
	throttleList []string
	smartTrim    model.SmartTrimConfig
}

// New returns an empty Store with default rules and ProBalance disabled.
func New() *Store {
	return &Store{}
}

// Snapshot is a read-only, lock-free copy of the store's state for one
// tick's resolution pass.
type Snapshot struct {
	Profiles     []model.TargetProfile
	DefaultRules model.DefaultRules
	ProBalance   model.ProBalanceConfig
	GameList     []string
	ExcludeList  []string
	ThrottleList []string
	SmartTrim    model.SmartTrimConfig
}

// Snapshot copies the store's current state under the read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Profiles:     append([]model.TargetProfile(nil), s.profiles...),
		DefaultRules: s.defaultRules,
		ProBalance:   s.proBalance,
		GameList:     append([]string(nil), s.gameList...),
		ExcludeList:  append([]string(nil), s.excludeList...),
		ThrottleList: append([]string(nil), s.throttleList...),
		SmartTrim:    s.smartTrim,
	}
}

// SetProfiles replaces the profile list wholesale.
func (s *Store) SetProfiles(profiles []model.TargetProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append([]model.TargetProfile(nil), profiles...)
}

// SetDefaultRules replaces the default rules.
func (s *Store) SetDefaultRules(rules model.DefaultRules) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultRules = rules
}

// SetProBalance replaces the ProBalance configuration.
func (s *Store) SetProBalance(cfg model.ProBalanceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proBalance = cfg
}

// SetLists replaces the game, exclude, and throttle lists.
func (s *Store) SetLists(game, exclude, throttle []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameList = append([]string(nil), game...)
	s.excludeList = append([]string(nil), exclude...)
	s.throttleList = append([]string(nil), throttle...)
}

// SetSmartTrim replaces the memory reaper configuration.
func (s *Store) SetSmartTrim(cfg model.SmartTrimConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smartTrim = cfg
}

// FindProfile performs the exact, case-insensitive profile-name lookup
// used by the resolver's precedence step 1.
func (snap Snapshot) FindProfile(name string) (model.TargetProfile, bool) {
	for _, p := range snap.Profiles {
		if p.Enabled && strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return model.TargetProfile{}, false
}

// matchesSubstring reports whether any entry in list is a case-insensitive
// substring of name, the matching rule used for game/exclude/throttle
// lists.
func matchesSubstring(list []string, name string) bool {
	lowerName := strings.ToLower(name)
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if strings.Contains(lowerName, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

// IsGame reports whether name matches the game list.
func (snap Snapshot) IsGame(name string) bool { return matchesSubstring(snap.GameList, name) }

// IsExcluded reports whether name matches the exclude list.
func (snap Snapshot) IsExcluded(name string) bool { return matchesSubstring(snap.ExcludeList, name) }

// IsThrottled reports whether name matches the throttle list.
func (snap Snapshot) IsThrottled(name string) bool { return matchesSubstring(snap.ThrottleList, name) }
