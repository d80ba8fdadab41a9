package businessflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/printshop-os/pricing-engine/models"
)

// In-memory repository fakes. They implement the store interfaces closely
// enough for flow tests: revision rows accumulate, latest-revision queries
// pick the highest revision per rule UUID, and records append in order.

type fakeRuleRepo struct {
	mu     sync.Mutex
	rules  []*models.PricingRule
	nextID uint

	saveErr error
	listErr error
}

func newFakeRuleRepo(rules ...*models.PricingRule) *fakeRuleRepo {
	repo := &fakeRuleRepo{}
	for _, r := range rules {
		if err := repo.Save(context.Background(), r); err != nil {
			panic(err)
		}
	}
	return repo
}

func (f *fakeRuleRepo) Save(_ context.Context, rule *models.PricingRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.nextID++
	rule.ID = f.nextID
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeRuleRepo) SaveBatch(ctx context.Context, rules []*models.PricingRule) error {
	for _, r := range rules {
		if err := f.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRuleRepo) ByID(_ context.Context, id uint) (*models.PricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRuleRepo) ByFilter(_ context.Context, filter models.PricingRuleFilter, _ string, limit, offset int) ([]*models.PricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PricingRule
	for _, r := range f.rules {
		if filter.RuleUUID != nil && r.RuleUUID != *filter.RuleUUID {
			continue
		}
		if filter.Category != nil && r.Category != *filter.Category {
			continue
		}
		if filter.IsActive != nil && r.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, r)
	}
	if offset > 0 && offset < len(out) {
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRuleRepo) Count(ctx context.Context, filter models.PricingRuleFilter) (int64, error) {
	rows, err := f.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (f *fakeRuleRepo) Exists(ctx context.Context, filter models.PricingRuleFilter) (bool, error) {
	count, err := f.Count(ctx, filter)
	return count > 0, err
}

func (f *fakeRuleRepo) LatestByRuleUUID(_ context.Context, ruleUUID uuid.UUID) (*models.PricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.PricingRule
	for _, r := range f.rules {
		if r.RuleUUID != ruleUUID {
			continue
		}
		if latest == nil || r.Revision > latest.Revision {
			latest = r
		}
	}
	return latest, nil
}

func (f *fakeRuleRepo) ByRuleUUIDAndRevision(_ context.Context, ruleUUID uuid.UUID, revision int) (*models.PricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.RuleUUID == ruleUUID && r.Revision == revision {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRuleRepo) History(_ context.Context, ruleUUID uuid.UUID) ([]*models.PricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PricingRule
	for _, r := range f.rules {
		if r.RuleUUID == ruleUUID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (f *fakeRuleRepo) latestPerRule() []*models.PricingRule {
	latest := make(map[uuid.UUID]*models.PricingRule)
	for _, r := range f.rules {
		if cur, ok := latest[r.RuleUUID]; !ok || r.Revision > cur.Revision {
			latest[r.RuleUUID] = r
		}
	}
	out := make([]*models.PricingRule, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleUUID.String() < out[j].RuleUUID.String() })
	return out
}

func (f *fakeRuleRepo) ListActive(_ context.Context, asOf time.Time) ([]*models.PricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.PricingRule
	for _, r := range f.latestPerRule() {
		if r.IsActive && r.InWindow(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleRepo) ListLatest(_ context.Context) ([]*models.PricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.latestPerRule(), nil
}

type fakeRecordRepo struct {
	mu      sync.Mutex
	records []*models.CalculationRecord
	nextID  uint

	saveErr error
}

func (f *fakeRecordRepo) Save(_ context.Context, record *models.CalculationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.nextID++
	record.ID = f.nextID
	f.records = append(f.records, record)
	return nil
}

func (f *fakeRecordRepo) SaveBatch(ctx context.Context, records []*models.CalculationRecord) error {
	for _, r := range records {
		if err := f.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRecordRepo) ByID(_ context.Context, id uint) (*models.CalculationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordRepo) ByFilter(_ context.Context, filter models.CalculationRecordFilter, _ string, limit, offset int) ([]*models.CalculationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CalculationRecord
	for _, r := range f.records {
		if filter.UUID != nil && r.UUID != *filter.UUID {
			continue
		}
		if filter.RequestFingerprint != nil && r.RequestFingerprint != *filter.RequestFingerprint {
			continue
		}
		out = append(out, r)
	}
	if offset > 0 && offset < len(out) {
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRecordRepo) Count(ctx context.Context, filter models.CalculationRecordFilter) (int64, error) {
	rows, err := f.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (f *fakeRecordRepo) Exists(ctx context.Context, filter models.CalculationRecordFilter) (bool, error) {
	count, err := f.Count(ctx, filter)
	return count > 0, err
}

func (f *fakeRecordRepo) ByUUID(_ context.Context, recordUUID uuid.UUID) (*models.CalculationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UUID == recordUUID {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordRepo) ListByFingerprint(_ context.Context, fingerprint string, limit, offset int) ([]*models.CalculationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CalculationRecord
	for _, r := range f.records {
		if r.RequestFingerprint == fingerprint {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComputedAt.After(out[j].ComputedAt) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
