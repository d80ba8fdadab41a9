package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/printshop-os/pricing-engine/app/dto"
	businessflow "github.com/printshop-os/pricing-engine/business_flow"
	"github.com/printshop-os/pricing-engine/utils"
)

// CalculationHandlerInterface defines the contract for calculation endpoints
type CalculationHandlerInterface interface {
	Calculate(c fiber.Ctx) error
	GetCalculationRecord(c fiber.Ctx) error
	ListCalculationRecords(c fiber.Ctx) error
	ReplayCalculation(c fiber.Ctx) error
}

// CalculationHandler handles price calculation and audit lookup requests
type CalculationHandler struct {
	flow      businessflow.CalculationFlow
	validator *validator.Validate
}

// NewCalculationHandler creates a new calculation handler
func NewCalculationHandler(flow businessflow.CalculationFlow) CalculationHandlerInterface {
	return &CalculationHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *CalculationHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *CalculationHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// Calculate prices a job against the current rule snapshot.
// @Summary Calculate Job Price
// @Description Price a job and durably record the calculation for audit
// @Tags Calculations
// @Accept json
// @Produce json
// @Param request body dto.CalculateRequest true "Job description"
// @Success 200 {object} dto.APIResponse{data=dto.CalculateResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 422 {object} dto.APIResponse "No applicable rule"
// @Failure 500 {object} dto.APIResponse "Calculation or audit failure"
// @Router /api/v1/calculations [post]
func (h *CalculationHandler) Calculate(c fiber.Ctx) error {
	var req dto.CalculateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, e := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(e))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	res, err := h.flow.Calculate(h.createRequestContext(c, "/api/v1/calculations"), &req)
	if err != nil {
		return h.mapCalculationError(c, err)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Calculation completed", res)
}

// GetCalculationRecord returns one immutable audit record.
// @Summary Get Calculation Record
// @Description Retrieve a stored calculation audit record by UUID
// @Tags Calculations
// @Produce json
// @Param uuid path string true "Record UUID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse "Record not found"
// @Router /api/v1/calculations/{uuid} [get]
func (h *CalculationHandler) GetCalculationRecord(c fiber.Ctx) error {
	recordUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid record UUID", "INVALID_RECORD_UUID", nil)
	}

	record, err := h.flow.GetCalculationRecord(h.createRequestContext(c, "/api/v1/calculations/:uuid"), recordUUID)
	if err != nil {
		if businessflow.IsRecordNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Calculation record not found", "RECORD_NOT_FOUND", nil)
		}
		log.Println("Get calculation record failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Get calculation record failed", "RECORD_GET_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Calculation record retrieved", record)
}

// ListCalculationRecords returns audit records matching a request fingerprint.
// @Summary List Calculation Records
// @Description List stored calculation records for one request fingerprint, newest first
// @Tags Calculations
// @Produce json
// @Param fingerprint query string true "Request fingerprint"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.APIResponse
// @Router /api/v1/calculations [get]
func (h *CalculationHandler) ListCalculationRecords(c fiber.Ctx) error {
	fingerprint := c.Query("fingerprint")
	if fingerprint == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "fingerprint query parameter is required", "MISSING_FINGERPRINT", nil)
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	records, err := h.flow.ListCalculationRecords(h.createRequestContext(c, "/api/v1/calculations"), fingerprint, limit, offset)
	if err != nil {
		log.Println("List calculation records failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "List calculation records failed", "RECORD_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Calculation records retrieved", records)
}

// ReplayCalculation recomputes a stored record against its pinned rule revisions.
// @Summary Replay Calculation
// @Description Recompute a stored calculation from the exact rule revisions it consulted and compare totals
// @Tags Calculations
// @Produce json
// @Param uuid path string true "Record UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ReplayCalculationResponse}
// @Failure 404 {object} dto.APIResponse "Record not found"
// @Router /api/v1/calculations/{uuid}/replay [post]
func (h *CalculationHandler) ReplayCalculation(c fiber.Ctx) error {
	recordUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid record UUID", "INVALID_RECORD_UUID", nil)
	}

	res, err := h.flow.ReplayCalculation(h.createRequestContext(c, "/api/v1/calculations/:uuid/replay"), recordUUID)
	if err != nil {
		if businessflow.IsRecordNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Calculation record not found", "RECORD_NOT_FOUND", nil)
		}
		log.Println("Replay calculation failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Replay calculation failed", "REPLAY_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Replay completed", res)
}

// mapCalculationError translates engine errors to HTTP statuses: malformed
// requests are 400, missing rule coverage is 422, rule conflicts are 409,
// and a failed audit append is 500 because the price was computed but could
// not be durably recorded.
func (h *CalculationHandler) mapCalculationError(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsValidationError(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	case businessflow.IsCoverageError(err):
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, err.Error(), "RULE_COVERAGE_ERROR", nil)
	case businessflow.IsConflictError(err):
		return h.ErrorResponse(c, fiber.StatusConflict, err.Error(), "RULE_CONFLICT", nil)
	case businessflow.IsAuditWriteError(err):
		log.Println("Audit append failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Calculation could not be recorded", "AUDIT_WRITE_FAILED", nil)
	case businessflow.IsSnapshotUnavailable(err):
		log.Println("Rule snapshot unavailable:", err)
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Pricing rules are not loaded", "SNAPSHOT_UNAVAILABLE", nil)
	default:
		log.Println("Calculation failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Calculation failed", "CALCULATION_FAILED", nil)
	}
}

// createRequestContext mirrors other handlers for request-scoped values
func (h *CalculationHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, utils.DefaultRequestTimeout)
}

func (h *CalculationHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
