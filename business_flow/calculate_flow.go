package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/printshop-os/pricing-engine/app/dto"
	"github.com/printshop-os/pricing-engine/models"
	"github.com/printshop-os/pricing-engine/repository"
	"github.com/printshop-os/pricing-engine/utils"
)

// CalculationFlow handles price calculation and the audit trail around it
type CalculationFlow interface {
	Calculate(ctx context.Context, req *dto.CalculateRequest) (*dto.CalculateResponse, error)
	GetCalculationRecord(ctx context.Context, recordUUID uuid.UUID) (*models.CalculationRecord, error)
	ListCalculationRecords(ctx context.Context, fingerprint string, limit, offset int) ([]*models.CalculationRecord, error)
	ReplayCalculation(ctx context.Context, recordUUID uuid.UUID) (*dto.ReplayCalculationResponse, error)
}

// CalculationFlowImpl implements the calculation business flow
type CalculationFlowImpl struct {
	ruleRepo   repository.PricingRuleRepository
	recordRepo repository.CalculationRecordRepository
	index      *RuleIndex

	// cache may be nil; quoting works without redis, just slower on repeats
	cache        *redis.Client
	cacheTTL     time.Duration
	auditTimeout time.Duration
}

// NewCalculationFlow creates a new calculation business flow
func NewCalculationFlow(
	ruleRepo repository.PricingRuleRepository,
	recordRepo repository.CalculationRecordRepository,
	index *RuleIndex,
	cache *redis.Client,
	cacheTTL time.Duration,
	auditTimeout time.Duration,
) CalculationFlow {
	if cacheTTL <= 0 {
		cacheTTL = utils.DefaultQuoteCacheTTL
	}
	if auditTimeout <= 0 {
		auditTimeout = utils.DefaultAuditAppendTimeout
	}
	return &CalculationFlowImpl{
		ruleRepo:     ruleRepo,
		recordRepo:   recordRepo,
		index:        index,
		cache:        cache,
		cacheTTL:     cacheTTL,
		auditTimeout: auditTimeout,
	}
}

// cachedQuote is the redis payload for a previously computed quote. The key
// embeds the snapshot version, so a rule change invalidates by key rotation.
type cachedQuote struct {
	RecordUUID      uuid.UUID                `json:"record_uuid"`
	SnapshotVersion int64                    `json:"snapshot_version"`
	Result          models.CalculationResult `json:"result"`
}

// Calculate prices one job: validate, pin a rule snapshot, match, fold the
// stages, and durably append the audit record. The result is returned only
// after the audit append succeeds; an un-audited price never leaves the
// engine.
func (f *CalculationFlowImpl) Calculate(ctx context.Context, req *dto.CalculateRequest) (*dto.CalculateResponse, error) {
	start := time.Now()
	request := req.ToModel().Normalized()

	if err := validateCalculationRequest(request); err != nil {
		calculationsTotal.WithLabelValues(request.Service, "validation_error").Inc()
		return nil, err
	}

	fingerprint := RequestFingerprint(request)

	snap := f.index.CurrentSnapshot()
	if snap == nil {
		// Cold start: build lazily so the first request after boot works
		// even if the warm-up rebuild was skipped.
		if err := f.index.Rebuild(ctx); err != nil {
			calculationsTotal.WithLabelValues(request.Service, "error").Inc()
			return nil, NewBusinessError("SNAPSHOT_UNAVAILABLE", "Rule snapshot is unavailable", ErrSnapshotUnavailable)
		}
		snap = f.index.CurrentSnapshot()
	}

	if cached := f.cacheLookup(ctx, snap.Version, fingerprint); cached != nil {
		calculationsTotal.WithLabelValues(request.Service, "cache_hit").Inc()
		calculationDuration.Observe(time.Since(start).Seconds())
		return &dto.CalculateResponse{
			Message:         "Calculation completed",
			RecordUUID:      cached.RecordUUID.String(),
			SnapshotVersion: cached.SnapshotVersion,
			Result:          cached.Result,
		}, nil
	}

	matched, warnings, err := MatchRules(snap, request, utils.UTCNow())
	f.index.AddWarnings(warnings)
	if err != nil {
		calculationsTotal.WithLabelValues(request.Service, "coverage_error").Inc()
		return nil, err
	}

	result, err := CalculatePrice(request, matched)
	if err != nil {
		calculationsTotal.WithLabelValues(request.Service, "validation_error").Inc()
		return nil, err
	}
	result.RequestFingerprint = fingerprint

	record, err := f.appendAuditRecord(ctx, snap.Version, fingerprint, request, result, matched.ConsultedRules())
	if err != nil {
		calculationsTotal.WithLabelValues(request.Service, "audit_error").Inc()
		return nil, err
	}

	f.cacheStore(ctx, snap.Version, fingerprint, &cachedQuote{
		RecordUUID:      record.UUID,
		SnapshotVersion: snap.Version,
		Result:          *result,
	})

	calculationsTotal.WithLabelValues(request.Service, "success").Inc()
	calculationDuration.Observe(time.Since(start).Seconds())

	return &dto.CalculateResponse{
		Message:         "Calculation completed",
		RecordUUID:      record.UUID.String(),
		SnapshotVersion: snap.Version,
		Result:          *result,
	}, nil
}

// appendAuditRecord durably stores the calculation snapshot within the audit
// timeout. On failure the caller suppresses the result.
func (f *CalculationFlowImpl) appendAuditRecord(
	ctx context.Context,
	snapshotVersion int64,
	fingerprint string,
	request models.CalculationRequest,
	result *models.CalculationResult,
	consulted []models.RuleVersionRef,
) (*models.CalculationRecord, error) {
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return nil, &AuditWriteError{Err: err}
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, &AuditWriteError{Err: err}
	}
	consultedJSON, err := json.Marshal(consulted)
	if err != nil {
		return nil, &AuditWriteError{Err: err}
	}

	record := &models.CalculationRecord{
		UUID:               uuid.New(),
		RequestFingerprint: fingerprint,
		SnapshotVersion:    snapshotVersion,
		Request:            requestJSON,
		Result:             resultJSON,
		RulesConsulted:     consultedJSON,
		ComputedAt:         utils.UTCNow(),
	}

	auditCtx, cancel := context.WithTimeout(ctx, f.auditTimeout)
	defer cancel()
	if err := f.recordRepo.Save(auditCtx, record); err != nil {
		return nil, &AuditWriteError{Err: err}
	}
	return record, nil
}

func (f *CalculationFlowImpl) quoteCacheKey(snapshotVersion int64, fingerprint string) string {
	return fmt.Sprintf("quote:v%d:%s", snapshotVersion, fingerprint)
}

func (f *CalculationFlowImpl) cacheLookup(ctx context.Context, snapshotVersion int64, fingerprint string) *cachedQuote {
	if f.cache == nil {
		return nil
	}
	payload, err := f.cache.Get(ctx, f.quoteCacheKey(snapshotVersion, fingerprint)).Bytes()
	if err != nil {
		quoteCacheHits.WithLabelValues("miss").Inc()
		return nil
	}
	var quote cachedQuote
	if err := json.Unmarshal(payload, &quote); err != nil {
		quoteCacheHits.WithLabelValues("miss").Inc()
		return nil
	}
	quoteCacheHits.WithLabelValues("hit").Inc()
	return &quote
}

// cacheStore is best-effort; a cache failure never fails a calculation.
func (f *CalculationFlowImpl) cacheStore(ctx context.Context, snapshotVersion int64, fingerprint string, quote *cachedQuote) {
	if f.cache == nil {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return
	}
	f.cache.Set(ctx, f.quoteCacheKey(snapshotVersion, fingerprint), payload, f.cacheTTL)
}

// GetCalculationRecord loads one audit record by its public UUID.
func (f *CalculationFlowImpl) GetCalculationRecord(ctx context.Context, recordUUID uuid.UUID) (*models.CalculationRecord, error) {
	record, err := f.recordRepo.ByUUID(ctx, recordUUID)
	if err != nil {
		return nil, NewBusinessError("RECORD_QUERY_FAILED", "Failed to query calculation record", err)
	}
	if record == nil {
		return nil, NewBusinessError("RECORD_NOT_FOUND", "Calculation record not found", ErrRecordNotFound)
	}
	return record, nil
}

// ListCalculationRecords returns audit records sharing one request
// fingerprint, newest first.
func (f *CalculationFlowImpl) ListCalculationRecords(ctx context.Context, fingerprint string, limit, offset int) ([]*models.CalculationRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	records, err := f.recordRepo.ListByFingerprint(ctx, fingerprint, limit, offset)
	if err != nil {
		return nil, NewBusinessError("RECORD_QUERY_FAILED", "Failed to query calculation records", err)
	}
	return records, nil
}

// ReplayCalculation recomputes a stored record against the exact rule
// revisions it consulted. Because rule edits append revisions instead of
// mutating rows, the replay sees the same rules the original run saw, and
// the recomputed totals must match the stored ones.
func (f *CalculationFlowImpl) ReplayCalculation(ctx context.Context, recordUUID uuid.UUID) (*dto.ReplayCalculationResponse, error) {
	record, err := f.GetCalculationRecord(ctx, recordUUID)
	if err != nil {
		return nil, err
	}

	request, err := record.DecodeRequest()
	if err != nil {
		return nil, NewBusinessError("RECORD_DECODE_FAILED", "Failed to decode stored request", err)
	}
	original, err := record.DecodeResult()
	if err != nil {
		return nil, NewBusinessError("RECORD_DECODE_FAILED", "Failed to decode stored result", err)
	}
	refs, err := record.DecodeRulesConsulted()
	if err != nil {
		return nil, NewBusinessError("RECORD_DECODE_FAILED", "Failed to decode consulted rules", err)
	}

	rules := make([]*models.PricingRule, 0, len(refs))
	for _, ref := range refs {
		rule, err := f.ruleRepo.ByRuleUUIDAndRevision(ctx, ref.RuleUUID, ref.Revision)
		if err != nil {
			return nil, NewBusinessError("RULE_QUERY_FAILED", "Failed to load consulted rule revision", err)
		}
		if rule == nil {
			return nil, NewBusinessError("RULE_REVISION_MISSING", fmt.Sprintf("Rule %s revision %d is missing", ref.RuleUUID, ref.Revision), ErrRuleNotFound)
		}
		rules = append(rules, rule)
	}

	// Ad-hoc snapshot containing exactly the consulted revisions, evaluated
	// at the original computation time so validity windows line up.
	snap := newRuleSnapshot(record.SnapshotVersion, rules)
	matched, _, err := MatchRules(snap, request, record.ComputedAt)
	if err != nil {
		return nil, err
	}
	recomputed, err := CalculatePrice(request, matched)
	if err != nil {
		return nil, err
	}
	recomputed.RequestFingerprint = RequestFingerprint(request)

	reproduced := recomputed.RetailTotal.Equal(original.RetailTotal) &&
		recomputed.CostSubtotal.Equal(original.CostSubtotal) &&
		len(recomputed.LineItems) == len(original.LineItems)

	return &dto.ReplayCalculationResponse{
		Message:          "Replay completed",
		RecordUUID:       record.UUID.String(),
		OriginalResult:   original,
		RecomputedResult: *recomputed,
		Reproduced:       reproduced,
	}, nil
}

// validateCalculationRequest enforces the request-shape rules that are
// independent of any pricing rule: known tags, sane counts, and the
// stitch-count pairing with the embroidery service.
func validateCalculationRequest(req models.CalculationRequest) error {
	if !models.IsValidServiceType(req.Service) {
		return NewValidationError("service", fmt.Sprintf("unknown service %q", req.Service), ErrUnknownService)
	}
	if req.Quantity < 1 {
		return NewValidationError("quantity", "quantity must be at least 1", ErrQuantityTooLow)
	}
	if req.ColorCount < 0 {
		return NewValidationError("color_count", "color count must not be negative", ErrColorCountNegative)
	}
	for _, loc := range req.PrintLocations {
		if !models.IsValidLocation(loc) {
			return NewValidationError("print_locations", fmt.Sprintf("unknown print location %q", loc), ErrUnknownLocation)
		}
	}
	for _, tag := range req.AddOns {
		if !models.IsValidAddOn(tag) {
			return NewValidationError("add_ons", fmt.Sprintf("unknown add-on %q", tag), ErrUnknownAddOn)
		}
	}
	if req.EmbroideryStitchCount != nil {
		if req.Service != models.ServiceEmbroidery {
			return NewValidationError("embroidery_stitch_count", "stitch count is only valid for embroidery jobs", ErrStitchCountNotAllowed)
		}
		if *req.EmbroideryStitchCount < 1 {
			return NewValidationError("embroidery_stitch_count", "stitch count must be at least 1", ErrStitchCountRequired)
		}
	}
	return nil
}
