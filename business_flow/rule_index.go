package businessflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/printshop-os/pricing-engine/models"
	"github.com/printshop-os/pricing-engine/repository"
	"github.com/printshop-os/pricing-engine/utils"
)

// RuleSnapshot is an immutable view of the active rule set, grouped by
// category. Snapshots are never mutated after construction; a calculation
// pins one snapshot for its whole lifetime.
type RuleSnapshot struct {
	Version    int64
	BuiltAt    time.Time
	byCategory map[string][]*models.PricingRule
	size       int
}

// RulesFor returns the snapshot's rules for one category. Callers must not
// modify the returned slice.
func (s *RuleSnapshot) RulesFor(category string) []*models.PricingRule {
	return s.byCategory[category]
}

// Size returns the number of rules in the snapshot.
func (s *RuleSnapshot) Size() int {
	return s.size
}

// newRuleSnapshot groups rules by category into an immutable snapshot.
func newRuleSnapshot(version int64, rules []*models.PricingRule) *RuleSnapshot {
	byCategory := make(map[string][]*models.PricingRule)
	for _, r := range rules {
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}
	return &RuleSnapshot{
		Version:    version,
		BuiltAt:    utils.UTCNow(),
		byCategory: byCategory,
		size:       len(rules),
	}
}

// RuleIndex holds the current rule snapshot behind an atomic pointer.
// Readers never block writers and writers never block readers: Rebuild
// constructs a fresh snapshot and swaps the pointer, while in-flight
// calculations keep using the snapshot they pinned at start.
//
// The index also collects non-fatal match warnings (overlapping volume
// brackets) which rule administration drains on its next list call.
type RuleIndex struct {
	ruleRepo repository.PricingRuleRepository

	snapshot atomic.Pointer[RuleSnapshot]
	version  atomic.Int64

	warningsMu sync.Mutex
	warnings   []MatchWarning
}

// NewRuleIndex creates an index over the given rule store. The index is
// empty until the first Rebuild.
func NewRuleIndex(ruleRepo repository.PricingRuleRepository) *RuleIndex {
	return &RuleIndex{ruleRepo: ruleRepo}
}

// Rebuild pulls the latest active rules from the store and atomically
// swaps in a new snapshot. On failure the previous snapshot remains
// authoritative and the error is returned to the (administrative) caller;
// in-flight calculations are unaffected.
func (i *RuleIndex) Rebuild(ctx context.Context) error {
	rows, err := i.ruleRepo.ListLatest(ctx)
	if err != nil {
		return NewBusinessError("RULE_INDEX_REBUILD_FAILED", "Failed to rebuild rule index", err)
	}

	active := make([]*models.PricingRule, 0, len(rows))
	for _, r := range rows {
		if r.IsActive {
			active = append(active, r)
		}
	}

	snap := newRuleSnapshot(i.version.Add(1), active)
	i.snapshot.Store(snap)
	ruleSnapshotSize.Set(float64(snap.Size()))
	ruleSnapshotVersion.Set(float64(snap.Version))
	return nil
}

// CurrentSnapshot returns the snapshot to pin for one calculation's
// lifetime. Returns nil if the index has never been built.
func (i *RuleIndex) CurrentSnapshot() *RuleSnapshot {
	return i.snapshot.Load()
}

// AddWarnings records non-fatal match warnings for rule administration.
func (i *RuleIndex) AddWarnings(ws []MatchWarning) {
	if len(ws) == 0 {
		return
	}
	i.warningsMu.Lock()
	defer i.warningsMu.Unlock()
	i.warnings = append(i.warnings, ws...)
}

// DrainWarnings returns and clears the accumulated warnings.
func (i *RuleIndex) DrainWarnings() []MatchWarning {
	i.warningsMu.Lock()
	defer i.warningsMu.Unlock()
	ws := i.warnings
	i.warnings = nil
	return ws
}
