package profile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/corebalance/corebalance/internal/model"
)

// wireProfile mirrors TargetProfile for the on-disk persistence format: affinity
// masks are hex strings with an "0x" prefix, priorities are case-insensitive
// names.
type wireProfile struct {
	Name           string  `json:"name"`
	Enabled        bool    `json:"enabled"`
	AffinityMask   string  `json:"affinity_mask,omitempty"`
	AffinityMode   string  `json:"affinity_mode,omitempty"`
	Priority       string  `json:"priority,omitempty"`
	ThreadBindCore *uint32 `json:"thread_bind_core,omitempty"`
	IdealCore      *uint32 `json:"ideal_core,omitempty"`
}

type wireDefaultRules struct {
	Enabled        bool   `json:"enabled"`
	GameMask       string `json:"game_mask,omitempty"`
	SystemMask     string `json:"system_mask,omitempty"`
	GamePriority   string `json:"game_priority"`
	SystemPriority string `json:"system_priority"`
}

type wireProBalance struct {
	Enabled          bool     `json:"enabled"`
	CPUThresholdPct  float32  `json:"cpu_threshold_pct"`
	RestrainPriority string   `json:"restrain_priority"`
	ExcludedNames    []string `json:"excluded_names"`
}

type wireSmartTrim struct {
	Enabled      bool   `json:"enabled"`
	ThresholdPct uint32 `json:"threshold_pct"`
	IntervalSec  uint32 `json:"interval_sec"`
	Mode         string `json:"mode"`
}

// Document is the on-disk shape of the profile store, written/read by the
// external configuration layer.
type Document struct {
	Profiles     []wireProfile    `json:"profiles"`
	DefaultRules wireDefaultRules `json:"default_rules"`
	ProBalance   wireProBalance   `json:"pro_balance"`
	GameList     []string         `json:"game_list"`
	ExcludeList  []string         `json:"exclude_list"`
	ThrottleList []string         `json:"throttle_list"`
	SmartTrim    wireSmartTrim    `json:"smart_trim"`
}

func parseHexMask(s string) (*uint64, error) {
	if s == "" {
		return nil, nil
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("parse affinity mask %q: %w", s, err)
	}
	return &v, nil
}

func formatHexMask(mask *uint64) string {
	if mask == nil {
		return ""
	}
	return fmt.Sprintf("0x%x", *mask)
}

func fromWireProfile(w wireProfile) (model.TargetProfile, error) {
	mask, err := parseHexMask(w.AffinityMask)
	if err != nil {
		return model.TargetProfile{}, err
	}
	var prio *model.PriorityClass
	if w.Priority != "" {
		p, ok := model.ParsePriority(w.Priority)
		if !ok {
			return model.TargetProfile{}, model.NewInvalidPriority(fmt.Sprintf("unrecognized priority %q in profile %q", w.Priority, w.Name))
		}
		prio = &p
	}
	return model.TargetProfile{
		Name:           w.Name,
		Enabled:        w.Enabled,
		AffinityMask:   mask,
		AffinityMode:   model.AffinityMode(w.AffinityMode),
		Priority:       prio,
		ThreadBindCore: w.ThreadBindCore,
		IdealCore:      w.IdealCore,
	}, nil
}

func toWireProfile(p model.TargetProfile) wireProfile {
	var prio string
	if p.Priority != nil {
		prio = p.Priority.String()
	}
	return wireProfile{
		Name:           p.Name,
		Enabled:        p.Enabled,
		AffinityMask:   formatHexMask(p.AffinityMask),
		AffinityMode:   string(p.AffinityMode),
		Priority:       prio,
		ThreadBindCore: p.ThreadBindCore,
		IdealCore:      p.IdealCore,
	}
}

// Load parses a Document from r into the store's fields, replacing prior
// state wholesale (LoadFile is the file-path convenience wrapper).
func (s *Store) Load(r io.Reader) error {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return model.NewConfigError(fmt.Sprintf("decode profile document: %v", err))
	}

	profiles := make([]model.TargetProfile, 0, len(doc.Profiles))
	for _, w := range doc.Profiles {
		p, err := fromWireProfile(w)
		if err != nil {
			return model.NewConfigError(err.Error())
		}
		profiles = append(profiles, p)
	}

	gameMask, err := parseHexMask(doc.DefaultRules.GameMask)
	if err != nil {
		return model.NewConfigError(err.Error())
	}
	systemMask, err := parseHexMask(doc.DefaultRules.SystemMask)
	if err != nil {
		return model.NewConfigError(err.Error())
	}
	gamePrio, ok := model.ParsePriority(doc.DefaultRules.GamePriority)
	if !ok {
		gamePrio = model.High
	}
	systemPrio, ok := model.ParsePriority(doc.DefaultRules.SystemPriority)
	if !ok {
		systemPrio = model.Normal
	}
	restrainPrio, ok := model.ParsePriority(doc.ProBalance.RestrainPriority)
	if !ok {
		restrainPrio = model.BelowNormal
	}

	s.SetProfiles(profiles)
	s.SetDefaultRules(model.DefaultRules{
		Enabled:        doc.DefaultRules.Enabled,
		GameMask:       gameMask,
		SystemMask:     systemMask,
		GamePriority:   gamePrio,
		SystemPriority: systemPrio,
	})
	s.SetProBalance(model.ProBalanceConfig{
		Enabled:          doc.ProBalance.Enabled,
		CPUThresholdPct:  doc.ProBalance.CPUThresholdPct,
		RestrainPriority: restrainPrio,
		ExcludedNames:    doc.ProBalance.ExcludedNames,
	})
	s.SetLists(doc.GameList, doc.ExcludeList, doc.ThrottleList)
	s.SetSmartTrim(model.SmartTrimConfig{
		Enabled:      doc.SmartTrim.Enabled,
		ThresholdPct: doc.SmartTrim.ThresholdPct,
		IntervalSec:  doc.SmartTrim.IntervalSec,
		Mode:         model.SmartTrimMode(doc.SmartTrim.Mode),
	})
	return nil
}

// LoadFile reads and loads a profile document from path.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open profile document: %w", err)
	}
	defer f.Close()
	return s.Load(f)
}

// Save serializes the current store state as a Document to w.
func (s *Store) Save(w io.Writer) error {
	snap := s.Snapshot()

	wireProfiles := make([]wireProfile, 0, len(snap.Profiles))
	for _, p := range snap.Profiles {
		wireProfiles = append(wireProfiles, toWireProfile(p))
	}

	doc := Document{
		Profiles: wireProfiles,
		DefaultRules: wireDefaultRules{
			Enabled:        snap.DefaultRules.Enabled,
			GameMask:       formatHexMask(snap.DefaultRules.GameMask),
			SystemMask:     formatHexMask(snap.DefaultRules.SystemMask),
			GamePriority:   snap.DefaultRules.GamePriority.String(),
			SystemPriority: snap.DefaultRules.SystemPriority.String(),
		},
		ProBalance: wireProBalance{
			Enabled:          snap.ProBalance.Enabled,
			CPUThresholdPct:  snap.ProBalance.CPUThresholdPct,
			RestrainPriority: snap.ProBalance.RestrainPriority.String(),
			ExcludedNames:    snap.ProBalance.ExcludedNames,
		},
		GameList:     snap.GameList,
		ExcludeList:  snap.ExcludeList,
		ThrottleList: snap.ThrottleList,
		SmartTrim: wireSmartTrim{
			Enabled:      snap.SmartTrim.Enabled,
			ThresholdPct: snap.SmartTrim.ThresholdPct,
			IntervalSec:  snap.SmartTrim.IntervalSec,
			Mode:         string(snap.SmartTrim.Mode),
		},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode profile document: %w", err)
	}
	return nil
}

// SaveFile writes the current store state to path.
func (s *Store) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create profile document: %w", err)
	}
	defer f.Close()
	return s.Save(f)
}
