/*
Package config provides YAML to Go shop-configuration conversion.

PURPOSE:
  Converts a YAML shop definition into a ledger.Config. The stage list,
  status list and milestone table are shop policy, not code: a manager
  reorders stages or retunes the body split in the config file and the
  ledger picks it up without a rebuild.

YAML SCHEMA:
  stages: [New Entry, Intake, Disassembly, Body, Paint, ...]
  statuses: [open, on_hold, closed]
  milestones:
    - id: body_60
      label: Body 60%
      from_stage: Body
      target_stage: Paint
      match: at_or_after
      bucket: body_hours
      role: body_tech
      share: 0.60

RUNTIME CHANGES:
  Holder is a mutable, concurrency-safe ledger.Source. The engine calls
  Current() per pass, so swapping the config on a live Holder changes
  matching on the very next recompute.

SEE ALSO:
  - ledger/milestone.go: the Config/Source types this package feeds
*/
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/production-ledger/ledger"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// FileYAML is the YAML representation of the shop configuration.
type FileYAML struct {
	Stages     []string        `yaml:"stages"`
	Statuses   []string        `yaml:"statuses"`
	Milestones []MilestoneYAML `yaml:"milestones"`
}

// MilestoneYAML represents one milestone rule.
type MilestoneYAML struct {
	ID          string  `yaml:"id"`
	Label       string  `yaml:"label"`
	FromStage   string  `yaml:"from_stage"`
	TargetStage string  `yaml:"target_stage"`
	Match       string  `yaml:"match,omitempty"` // at_or_after (default) or after
	Bucket      string  `yaml:"bucket"`
	Role        string  `yaml:"role"`
	Share       float64 `yaml:"share"`
}

// =============================================================================
// DEFAULTS - the standard collision-shop setup
// =============================================================================

// Default returns the stock configuration: the ten-stage flow with the
// 60/40 body split and full refinish payout.
func Default() ledger.Config {
	return ledger.Config{
		Stages: ledger.StageOrder{
			"New Entry", "Intake", "Disassembly", "Body", "Paint",
			"Reassembly", "Mechanical", "Detail", "QC", "Delivered",
		},
		Statuses: []ledger.Status{ledger.StatusOpen, ledger.StatusOnHold, ledger.StatusClosed},
		Milestones: []ledger.Milestone{
			{
				ID: "body_60", Label: "Body 60%",
				FromStage: "Body", TargetStage: "Paint", Match: ledger.MatchAtOrAfter,
				Bucket: "body_hours", Role: "body_tech",
				Share: decimal.NewFromFloat(0.60),
			},
			{
				ID: "body_40", Label: "Body 40%",
				FromStage: "Reassembly", TargetStage: "Reassembly", Match: ledger.MatchAfter,
				Bucket: "body_hours", Role: "body_tech",
				Share: decimal.NewFromFloat(0.40),
			},
			{
				ID: "paint_100", Label: "Refinish 100%",
				FromStage: "Paint", TargetStage: "Paint", Match: ledger.MatchAfter,
				Bucket: "refinish_hours", Role: "painter",
				Share: decimal.NewFromInt(1),
			},
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads and validates a YAML shop configuration file.
func Load(path string) (ledger.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ledger.Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse converts YAML bytes into a validated ledger.Config.
func Parse(raw []byte) (ledger.Config, error) {
	var f FileYAML
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return ledger.Config{}, fmt.Errorf("parse config: %w", err)
	}
	return f.ToConfig()
}

// ToConfig validates the YAML document and builds the domain config.
func (f FileYAML) ToConfig() (ledger.Config, error) {
	if len(f.Stages) == 0 {
		return ledger.Config{}, fmt.Errorf("config: stages list is empty")
	}
	cfg := ledger.Config{Stages: ledger.StageOrder(f.Stages)}

	if len(f.Statuses) == 0 {
		cfg.Statuses = []ledger.Status{ledger.StatusOpen, ledger.StatusOnHold, ledger.StatusClosed}
	} else {
		for _, s := range f.Statuses {
			cfg.Statuses = append(cfg.Statuses, ledger.Status(s))
		}
	}

	seen := make(map[string]bool)
	for i, m := range f.Milestones {
		if m.ID == "" || m.Label == "" {
			return ledger.Config{}, fmt.Errorf("config: milestone %d needs id and label", i)
		}
		if seen[m.ID] {
			return ledger.Config{}, fmt.Errorf("config: duplicate milestone id %q", m.ID)
		}
		seen[m.ID] = true
		if !cfg.Stages.Contains(m.FromStage) {
			return ledger.Config{}, fmt.Errorf("config: milestone %q: from_stage %q not in stages", m.ID, m.FromStage)
		}
		if !cfg.Stages.Contains(m.TargetStage) {
			return ledger.Config{}, fmt.Errorf("config: milestone %q: target_stage %q not in stages", m.ID, m.TargetStage)
		}
		match := ledger.MatchKind(m.Match)
		switch match {
		case "":
			match = ledger.MatchAtOrAfter
		case ledger.MatchAtOrAfter, ledger.MatchAfter:
		default:
			return ledger.Config{}, fmt.Errorf("config: milestone %q: unknown match %q", m.ID, m.Match)
		}
		share := decimal.NewFromFloat(m.Share)
		if !share.IsPositive() || share.GreaterThan(decimal.NewFromInt(1)) {
			return ledger.Config{}, fmt.Errorf("config: milestone %q: share must be in (0, 1]", m.ID)
		}
		cfg.Milestones = append(cfg.Milestones, ledger.Milestone{
			ID:          m.ID,
			Label:       m.Label,
			FromStage:   m.FromStage,
			TargetStage: m.TargetStage,
			Match:       match,
			Bucket:      ledger.Bucket(m.Bucket),
			Role:        ledger.Role(m.Role),
			Share:       share,
		})
	}
	if len(cfg.Milestones) == 0 {
		cfg.Milestones = Default().Milestones
	}
	return cfg, nil
}

// =============================================================================
// HOLDER - mutable, concurrency-safe ledger.Source
// =============================================================================

// Holder is a swappable configuration source. Readers always see a
// complete config, never a partial update.
type Holder struct {
	mu  sync.RWMutex
	cfg ledger.Config
}

func NewHolder(cfg ledger.Config) *Holder {
	return &Holder{cfg: cfg}
}

func (h *Holder) Current() ledger.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Set swaps the configuration; the next engine pass uses it.
func (h *Holder) Set(cfg ledger.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}
