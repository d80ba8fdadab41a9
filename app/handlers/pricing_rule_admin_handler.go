package handlers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/printshop-os/pricing-engine/app/dto"
	businessflow "github.com/printshop-os/pricing-engine/business_flow"
	"github.com/printshop-os/pricing-engine/utils"
)

// PricingRuleAdminHandlerInterface defines admin endpoints for pricing rules
type PricingRuleAdminHandlerInterface interface {
	CreateRule(c fiber.Ctx) error
	UpdateRule(c fiber.Ctx) error
	DeactivateRule(c fiber.Ctx) error
	GetRule(c fiber.Ctx) error
	ListActiveRules(c fiber.Ctx) error
	ListRuleHistory(c fiber.Ctx) error
	ExportRules(c fiber.Ctx) error
}

// PricingRuleAdminHandler implements admin endpoints for pricing rules
type PricingRuleAdminHandler struct {
	flow      businessflow.RuleAdminFlow
	validator *validator.Validate
}

// NewPricingRuleAdminHandler creates a new pricing rule admin handler
func NewPricingRuleAdminHandler(flow businessflow.RuleAdminFlow) PricingRuleAdminHandlerInterface {
	return &PricingRuleAdminHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *PricingRuleAdminHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *PricingRuleAdminHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// CreateRule creates revision 1 of a new pricing rule.
// @Summary Create Pricing Rule (Admin)
// @Description Create a new pricing rule; the rule index is rebuilt before returning
// @Tags Admin Pricing Rules
// @Accept json
// @Produce json
// @Param request body dto.CreatePricingRuleRequest true "Pricing rule payload"
// @Success 201 {object} dto.APIResponse{data=dto.PricingRuleResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Priority collision"
// @Router /api/v1/admin/pricing-rules [post]
func (h *PricingRuleAdminHandler) CreateRule(c fiber.Ctx) error {
	var req dto.CreatePricingRuleRequest
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

	res, err := h.flow.CreateRule(h.createRequestContext(c, "/api/v1/admin/pricing-rules"), &req)
	if err != nil {
		return h.mapRuleError(c, err, "Create pricing rule failed", "RULE_CREATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Pricing rule created", res)
}

// UpdateRule appends a new revision of an existing rule.
// @Summary Update Pricing Rule (Admin)
// @Description Append a new revision with the provided fields; prior revisions are immutable
// @Tags Admin Pricing Rules
// @Accept json
// @Produce json
// @Param uuid path string true "Rule UUID"
// @Param request body dto.UpdatePricingRuleRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.PricingRuleResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Rule not found"
// @Failure 409 {object} dto.APIResponse "Priority collision"
// @Router /api/v1/admin/pricing-rules/{uuid} [put]
func (h *PricingRuleAdminHandler) UpdateRule(c fiber.Ctx) error {
	ruleUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid rule UUID", "INVALID_RULE_UUID", nil)
	}

	var req dto.UpdatePricingRuleRequest
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

	res, err := h.flow.UpdateRule(h.createRequestContext(c, "/api/v1/admin/pricing-rules/:uuid"), ruleUUID, &req)
	if err != nil {
		return h.mapRuleError(c, err, "Update pricing rule failed", "RULE_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pricing rule updated", res)
}

// DeactivateRule appends an inactive revision of a rule.
// @Summary Deactivate Pricing Rule (Admin)
// @Description Remove a rule from future snapshots while keeping its history replayable
// @Tags Admin Pricing Rules
// @Produce json
// @Param uuid path string true "Rule UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PricingRuleResponse}
// @Failure 404 {object} dto.APIResponse "Rule not found"
// @Router /api/v1/admin/pricing-rules/{uuid} [delete]
func (h *PricingRuleAdminHandler) DeactivateRule(c fiber.Ctx) error {
	ruleUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid rule UUID", "INVALID_RULE_UUID", nil)
	}

	res, err := h.flow.DeactivateRule(h.createRequestContext(c, "/api/v1/admin/pricing-rules/:uuid"), ruleUUID)
	if err != nil {
		return h.mapRuleError(c, err, "Deactivate pricing rule failed", "RULE_DEACTIVATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pricing rule deactivated", res)
}

// GetRule returns the latest revision of one rule.
// @Summary Get Pricing Rule (Admin)
// @Description Retrieve the latest revision of a pricing rule
// @Tags Admin Pricing Rules
// @Produce json
// @Param uuid path string true "Rule UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PricingRuleResponse}
// @Failure 404 {object} dto.APIResponse "Rule not found"
// @Router /api/v1/admin/pricing-rules/{uuid} [get]
func (h *PricingRuleAdminHandler) GetRule(c fiber.Ctx) error {
	ruleUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid rule UUID", "INVALID_RULE_UUID", nil)
	}

	res, err := h.flow.GetRule(h.createRequestContext(c, "/api/v1/admin/pricing-rules/:uuid"), ruleUUID)
	if err != nil {
		return h.mapRuleError(c, err, "Get pricing rule failed", "RULE_GET_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pricing rule retrieved", res)
}

// ListActiveRules returns the currently effective rules plus match warnings.
// @Summary List Active Pricing Rules (Admin)
// @Description List the latest active revision of every rule, with accumulated match warnings
// @Tags Admin Pricing Rules
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListPricingRulesResponse}
// @Router /api/v1/admin/pricing-rules [get]
func (h *PricingRuleAdminHandler) ListActiveRules(c fiber.Ctx) error {
	res, err := h.flow.ListActiveRules(h.createRequestContext(c, "/api/v1/admin/pricing-rules"))
	if err != nil {
		log.Println("List pricing rules failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "List pricing rules failed", "RULE_LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Pricing rules retrieved", res)
}

// ListRuleHistory returns every revision of one rule, oldest first.
// @Summary List Pricing Rule History (Admin)
// @Description List all revisions of a pricing rule, oldest first
// @Tags Admin Pricing Rules
// @Produce json
// @Param uuid path string true "Rule UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ListPricingRulesResponse}
// @Failure 404 {object} dto.APIResponse "Rule not found"
// @Router /api/v1/admin/pricing-rules/{uuid}/history [get]
func (h *PricingRuleAdminHandler) ListRuleHistory(c fiber.Ctx) error {
	ruleUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid rule UUID", "INVALID_RULE_UUID", nil)
	}

	res, err := h.flow.ListRuleHistory(h.createRequestContext(c, "/api/v1/admin/pricing-rules/:uuid/history"), ruleUUID)
	if err != nil {
		return h.mapRuleError(c, err, "List rule history failed", "RULE_HISTORY_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pricing rule history retrieved", res)
}

// ExportRules downloads the latest rule set as an XLSX workbook.
// @Summary Export Pricing Rules (Admin)
// @Description Download the latest revision of every rule as an XLSX workbook
// @Tags Admin Pricing Rules
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} binary
// @Router /api/v1/admin/pricing-rules/export [get]
func (h *PricingRuleAdminHandler) ExportRules(c fiber.Ctx) error {
	payload, err := h.flow.ExportRules(h.createRequestContext(c, "/api/v1/admin/pricing-rules/export"))
	if err != nil {
		log.Println("Export pricing rules failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Export pricing rules failed", "RULE_EXPORT_FAILED", nil)
	}

	filename := fmt.Sprintf("pricing-rules-%s.xlsx", utils.UTCNow().Format("20060102-150405"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(payload)
}

func (h *PricingRuleAdminHandler) mapRuleError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsValidationError(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	case businessflow.IsConflictError(err):
		return h.ErrorResponse(c, fiber.StatusConflict, err.Error(), "RULE_CONFLICT", nil)
	case businessflow.IsRuleNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Pricing rule not found", "RULE_NOT_FOUND", nil)
	default:
		log.Println(message+":", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
	}
}

// createRequestContext mirrors other handlers for request-scoped values
func (h *PricingRuleAdminHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, utils.DefaultRequestTimeout)
}

func (h *PricingRuleAdminHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
