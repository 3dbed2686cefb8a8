package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/application/service"
	"github.com/verisite/fieldflow/internal/domain/flow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	definitionService service.DefinitionService
	instanceService   service.InstanceService
	movementService   service.MovementService
	evidenceService   service.EvidenceService
	expansionService  service.ExpansionService
	reportService     service.ReportService
	health            HealthFunc
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	definitionService service.DefinitionService,
	instanceService service.InstanceService,
	movementService service.MovementService,
	evidenceService service.EvidenceService,
	expansionService service.ExpansionService,
	reportService service.ReportService,
	health HealthFunc,
	logger Logger,
) *Handlers {
	return &Handlers{
		definitionService: definitionService,
		instanceService:   instanceService,
		movementService:   movementService,
		evidenceService:   evidenceService,
		expansionService:  expansionService,
		reportService:     reportService,
		health:            health,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success    bool             `json:"success"`
	Data       interface{}      `json:"data,omitempty"`
	Error      string           `json:"error,omitempty"`
	Violations []flow.Violation `json:"violations,omitempty"`
}

// ComponentHealth reports the health of one backing component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthFunc reports overall and per-component health. Nil means the
// server has no components to probe and always reports healthy.
type HealthFunc func() (bool, map[string]ComponentHealth)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// respondError maps domain sentinels to HTTP status codes. Validation
// failures surface their full violation list so authors can fix every
// problem in one pass.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var vErr *flow.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: vErr.Error(), Violations: vErr.Violations})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, flow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, flow.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, flow.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, flow.ErrOutOfOrder):
		status = http.StatusConflict
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func (h *Handlers) respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	var components map[string]ComponentHealth

	if h.health != nil {
		healthy, comps := h.health()
		components = comps
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, HealthResponse{
		Status:     status,
		Timestamp:  time.Now().Format(time.RFC3339),
		Version:    "1.0.0",
		Components: components,
	})
}

// CreateDefinition handles POST /api/v1/definitions
func (h *Handlers) CreateDefinition(c *gin.Context) {
	var input service.DefinitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	def, err := h.definitionService.CreateDefinition(c.Request.Context(), input)
	if err != nil {
		h.logger.Error("Failed to create definition", "name", input.Name, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: def})
}

type listDefinitionsQuery struct {
	PerilType string `form:"peril_type"`
	Active    *bool  `form:"active"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// ListDefinitions handles GET /api/v1/definitions
func (h *Handlers) ListDefinitions(c *gin.Context) {
	var query listDefinitionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	defs, err := h.definitionService.ListDefinitions(c.Request.Context(), port.DefinitionFilter{
		PerilType: query.PerilType,
		IsActive:  query.Active,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		h.logger.Error("Failed to list definitions", "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetDefinition handles GET /api/v1/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	id := c.Param("id")

	def, err := h.definitionService.GetDefinition(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get definition", "definition_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// UpdateDefinition handles PUT /api/v1/definitions/:id
func (h *Handlers) UpdateDefinition(c *gin.Context) {
	id := c.Param("id")

	var input service.DefinitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	def, err := h.definitionService.UpdateDefinition(c.Request.Context(), id, input)
	if err != nil {
		h.logger.Error("Failed to update definition", "definition_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// DeleteDefinition handles DELETE /api/v1/definitions/:id
func (h *Handlers) DeleteDefinition(c *gin.Context) {
	id := c.Param("id")

	if err := h.definitionService.DeleteDefinition(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to delete definition", "definition_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

type duplicateDefinitionRequest struct {
	Name string `json:"name"`
}

// DuplicateDefinition handles POST /api/v1/definitions/:id/duplicate
func (h *Handlers) DuplicateDefinition(c *gin.Context) {
	id := c.Param("id")

	var req duplicateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	def, err := h.definitionService.DuplicateDefinition(c.Request.Context(), id, req.Name)
	if err != nil {
		h.logger.Error("Failed to duplicate definition", "definition_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: def})
}

type toggleActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// ToggleDefinitionActive handles POST /api/v1/definitions/:id/toggle-active
func (h *Handlers) ToggleDefinitionActive(c *gin.Context) {
	id := c.Param("id")

	var req toggleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	def, err := h.definitionService.ToggleActive(c.Request.Context(), id, req.IsActive)
	if err != nil {
		h.logger.Error("Failed to toggle definition", "definition_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// DefinitionValidation reports the outcome of a dry-run validation
type DefinitionValidation struct {
	Valid      bool             `json:"valid"`
	Violations []flow.Violation `json:"violations"`
}

// ValidateDefinition handles POST /api/v1/definitions/validate. Always
// responds 200; the violation list is the result, not an error.
func (h *Handlers) ValidateDefinition(c *gin.Context) {
	var input service.DefinitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	violations := h.definitionService.ValidateDefinition(c.Request.Context(), input)
	if violations == nil {
		violations = []flow.Violation{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: DefinitionValidation{
		Valid:      len(violations) == 0,
		Violations: violations,
	}})
}

type startFlowRequest struct {
	ClaimID   string `json:"claim_id"`
	PerilType string `json:"peril_type"`
}

// StartFlow handles POST /api/v1/flows
func (h *Handlers) StartFlow(c *gin.Context) {
	var req startFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	instance, err := h.instanceService.StartFlowForClaim(c.Request.Context(), req.ClaimID, req.PerilType)
	if err != nil {
		h.logger.Error("Failed to start flow", "claim_id", req.ClaimID, "peril_type", req.PerilType, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: instance})
}

// GetCurrentFlow handles GET /api/v1/claims/:claimId/flow
func (h *Handlers) GetCurrentFlow(c *gin.Context) {
	claimID := c.Param("claimId")

	instance, err := h.instanceService.GetCurrentFlow(c.Request.Context(), claimID)
	if err != nil {
		h.logger.Error("Failed to get current flow", "claim_id", claimID, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// CancelFlow handles POST /api/v1/flows/:id/cancel
func (h *Handlers) CancelFlow(c *gin.Context) {
	id := c.Param("id")

	if err := h.instanceService.CancelFlow(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to cancel flow", "flow_instance_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// GetFlowProgress handles GET /api/v1/flows/:id/progress
func (h *Handlers) GetFlowProgress(c *gin.Context) {
	id := c.Param("id")

	progress, err := h.instanceService.GetFlowProgress(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get flow progress", "flow_instance_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: progress})
}

// GetFlowTimeline handles GET /api/v1/flows/:id/timeline
func (h *Handlers) GetFlowTimeline(c *gin.Context) {
	id := c.Param("id")

	timeline, err := h.instanceService.GetFlowTimeline(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get flow timeline", "flow_instance_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: timeline})
}

// GetNextMovement handles GET /api/v1/flows/:id/next
func (h *Handlers) GetNextMovement(c *gin.Context) {
	id := c.Param("id")

	next, err := h.movementService.GetNextMovement(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get next movement", "flow_instance_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: next})
}

// CompleteMovement handles POST /api/v1/flows/:id/movements/:movementId/complete
func (h *Handlers) CompleteMovement(c *gin.Context) {
	id := c.Param("id")
	movementID := c.Param("movementId")

	var input service.CompleteMovementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	completion, err := h.movementService.CompleteMovement(c.Request.Context(), id, movementID, input)
	if err != nil {
		h.logger.Error("Failed to complete movement",
			"flow_instance_id", id, "movement_id", movementID, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: completion})
}

type skipMovementRequest struct {
	Reason string `json:"reason"`
	UserID string `json:"user_id"`
}

// SkipMovement handles POST /api/v1/flows/:id/movements/:movementId/skip
func (h *Handlers) SkipMovement(c *gin.Context) {
	id := c.Param("id")
	movementID := c.Param("movementId")

	var req skipMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	completion, err := h.movementService.SkipMovement(c.Request.Context(), id, movementID, req.Reason, req.UserID)
	if err != nil {
		h.logger.Error("Failed to skip movement",
			"flow_instance_id", id, "movement_id", movementID, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: completion})
}

// EvaluateGate handles POST /api/v1/flows/:id/gates/:gateId/evaluate.
// A failed gate is a normal outcome: 200 with passed=false and the
// missing lists, never an error status.
func (h *Handlers) EvaluateGate(c *gin.Context) {
	id := c.Param("id")
	gateID := c.Param("gateId")

	evaluation, err := h.movementService.EvaluateGate(c.Request.Context(), id, gateID)
	if err != nil {
		h.logger.Error("Failed to evaluate gate",
			"flow_instance_id", id, "gate_id", gateID, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: evaluation})
}

// AttachEvidence handles POST /api/v1/flows/:id/movements/:movementId/evidence
func (h *Handlers) AttachEvidence(c *gin.Context) {
	id := c.Param("id")
	movementID := c.Param("movementId")

	var input service.EvidenceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	evidence, err := h.evidenceService.AttachEvidence(c.Request.Context(), id, movementID, input)
	if err != nil {
		h.logger.Error("Failed to attach evidence",
			"flow_instance_id", id, "movement_id", movementID, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: evidence})
}

// GetMovementEvidence handles GET /api/v1/flows/:id/movements/:movementId/evidence
func (h *Handlers) GetMovementEvidence(c *gin.Context) {
	id := c.Param("id")
	movementID := c.Param("movementId")

	evidence, err := h.evidenceService.GetMovementEvidence(c.Request.Context(), id, movementID)
	if err != nil {
		h.logger.Error("Failed to list evidence",
			"flow_instance_id", id, "movement_id", movementID, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: evidence})
}

// ValidateEvidence handles GET /api/v1/flows/:id/movements/:movementId/evidence/validation
func (h *Handlers) ValidateEvidence(c *gin.Context) {
	id := c.Param("id")
	movementID := c.Param("movementId")

	report, err := h.evidenceService.ValidateEvidence(c.Request.Context(), id, movementID)
	if err != nil {
		h.logger.Error("Failed to validate evidence",
			"flow_instance_id", id, "movement_id", movementID, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

type addRoomsRequest struct {
	RoomName  string                      `json:"room_name"`
	Movements []service.RoomMovementInput `json:"movements"`
}

// AddRoomMovements handles POST /api/v1/flows/:id/rooms
func (h *Handlers) AddRoomMovements(c *gin.Context) {
	id := c.Param("id")

	var req addRoomsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	movements, err := h.expansionService.AddRoomMovements(c.Request.Context(), id, req.RoomName, req.Movements)
	if err != nil {
		h.logger.Error("Failed to add room movements",
			"flow_instance_id", id, "room_name", req.RoomName, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: movements})
}

type suggestionsRequest struct {
	Context string `json:"context"`
}

// SuggestionsResponse carries suggested movement candidates
type SuggestionsResponse struct {
	Candidates []port.MovementCandidate `json:"candidates"`
}

// SuggestMovements handles POST /api/v1/flows/:id/suggestions. Suggestions
// are advisory only; nothing is written to the flow.
func (h *Handlers) SuggestMovements(c *gin.Context) {
	id := c.Param("id")

	var req suggestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	candidates, err := h.expansionService.GetSuggestedMovements(c.Request.Context(), id, req.Context)
	if err != nil {
		h.logger.Error("Failed to get movement suggestions", "flow_instance_id", id, "error", err)
		h.respondError(c, err)
		return
	}
	if candidates == nil {
		candidates = []port.MovementCandidate{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: SuggestionsResponse{Candidates: candidates}})
}

// InsertMovement handles POST /api/v1/flows/:id/movements
func (h *Handlers) InsertMovement(c *gin.Context) {
	id := c.Param("id")

	var input service.InsertMovementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondBadRequest(c, err)
		return
	}

	movement, err := h.expansionService.InsertCustomMovement(c.Request.Context(), id, input)
	if err != nil {
		h.logger.Error("Failed to insert movement", "flow_instance_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: movement})
}

// ReportResponse carries the path of an exported report
type ReportResponse struct {
	Path string `json:"path"`
}

// ExportTimeline handles POST /api/v1/flows/:id/report
func (h *Handlers) ExportTimeline(c *gin.Context) {
	id := c.Param("id")

	path, err := h.reportService.ExportTimeline(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to export timeline", "flow_instance_id", id, "error", err)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: ReportResponse{Path: path}})
}
