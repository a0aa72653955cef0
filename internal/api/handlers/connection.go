package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pratik-mahalle/farmlink/internal/api/dto"
	"github.com/pratik-mahalle/farmlink/internal/domain/connection"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/utils"
	"github.com/pratik-mahalle/farmlink/internal/pkg/validator"
	"github.com/pratik-mahalle/farmlink/internal/providers"
)

const maxConnectBodyBytes = 16 << 10

// ConnectionHandler serves the connection lifecycle endpoints
type ConnectionHandler struct {
	service   connection.Service
	catalog   *providers.Catalog
	logger    *logger.Logger
	validator *validator.Validator
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(service connection.Service, catalog *providers.Catalog, log *logger.Logger, val *validator.Validator) *ConnectionHandler {
	return &ConnectionHandler{
		service:   service,
		catalog:   catalog,
		logger:    log,
		validator: val,
	}
}

// Providers lists the configured providers
// @Summary List providers
// @Description List the farm-data providers a user can connect
// @Tags Providers
// @Produce json
// @Success 200 {array} dto.ProviderDTO "Configured providers"
// @Security BearerAuth
// @Router /providers [get]
func (h *ConnectionHandler) Providers(w http.ResponseWriter, r *http.Request) {
	ids := h.catalog.IDs()
	out := make([]dto.ProviderDTO, 0, len(ids))
	for _, id := range ids {
		p, _ := h.catalog.Get(id)
		out = append(out, dto.NewProviderDTO(p))
	}
	utils.WriteSuccess(w, http.StatusOK, out)
}

// List returns the status of every provider for the current user
// @Summary List connection statuses
// @Description Probe every configured provider and report the user's connection status
// @Tags Connections
// @Produce json
// @Success 200 {array} dto.ConnectionStatusDTO "Connection statuses"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /connections [get]
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	reports, err := h.service.ListStatuses(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list connections")
		return
	}

	out := make([]dto.ConnectionStatusDTO, len(reports))
	for i, rep := range reports {
		out[i] = dto.NewConnectionStatusDTO(rep)
	}
	utils.WriteSuccess(w, http.StatusOK, out)
}

// Status checks one provider connection
// @Summary Check connection status
// @Description Refresh the token if needed, probe every capability and report the status
// @Tags Connections
// @Produce json
// @Param provider path string true "Provider id"
// @Success 200 {object} dto.ConnectionStatusDTO "Connection status"
// @Failure 404 {object} utils.ErrorResponse "Unknown provider"
// @Security BearerAuth
// @Router /connections/{provider}/status [get]
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	report, err := h.service.CheckStatus(r.Context(), userID, chi.URLParam(r, "provider"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to check connection")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, dto.NewConnectionStatusDTO(report))
}

// Authorize returns the provider consent URL
// @Summary Start authorization
// @Description Build the provider authorization URL the user must visit to connect
// @Tags Connections
// @Produce json
// @Param provider path string true "Provider id"
// @Param state query string false "Opaque state echoed back by the provider"
// @Success 200 {object} dto.AuthorizeResponse "Authorization URL"
// @Failure 404 {object} utils.ErrorResponse "Unknown provider"
// @Security BearerAuth
// @Router /connections/{provider}/authorize [get]
func (h *ConnectionHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")
	provider, ok := h.catalog.Get(providerID)
	if !ok {
		utils.WriteError(w, errors.UnsupportedProvider(providerID))
		return
	}
	if provider.AuthURL == "" {
		utils.WriteError(w, errors.BadRequest("Provider has no authorization URL configured"))
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		state = uuid.NewString()
	}
	utils.WriteSuccess(w, http.StatusOK, dto.AuthorizeResponse{
		Provider: provider.ID,
		URL:      provider.AuthCodeURL(state),
	})
}

// Connect completes an authorization
// @Summary Connect provider
// @Description Exchange an authorization code, store the credential and return the first status check
// @Tags Connections
// @Accept json
// @Produce json
// @Param provider path string true "Provider id"
// @Param request body dto.ConnectRequest true "Authorization code"
// @Success 200 {object} dto.ConnectionStatusDTO "Connection status"
// @Failure 400 {object} utils.ErrorResponse "Invalid request or validation error"
// @Failure 502 {object} utils.ErrorResponse "Code exchange failed"
// @Security BearerAuth
// @Router /connections/{provider}/connect [post]
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.ConnectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConnectBodyBytes)).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return
	}
	if errs := h.validator.Validate(req); len(errs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", errs))
		return
	}

	report, err := h.service.Connect(r.Context(), userID, chi.URLParam(r, "provider"), req.Code)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to connect provider")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, dto.NewConnectionStatusDTO(report))
}

// Disconnect removes the stored credential
// @Summary Disconnect provider
// @Description Forget the user's credential for a provider. Disconnecting twice is not an error.
// @Tags Connections
// @Produce json
// @Param provider path string true "Provider id"
// @Success 200 {object} utils.SuccessResponse "Provider disconnected"
// @Failure 404 {object} utils.ErrorResponse "Unknown provider"
// @Security BearerAuth
// @Router /connections/{provider}/disconnect [post]
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), userID, chi.URLParam(r, "provider")); err != nil {
		writeServiceError(w, h.logger, err, "Failed to disconnect provider")
		return
	}
	utils.WriteSuccessWithMessage(w, http.StatusOK, "Provider disconnected", nil)
}

// Fetch calls one capability endpoint
// @Summary Fetch provider data
// @Description Call a capability endpoint on behalf of the user. Failures carry a categorized error code.
// @Tags Connections
// @Produce json
// @Param provider path string true "Provider id"
// @Param endpoint path string true "Endpoint name"
// @Success 200 {object} dto.FetchResponse "Endpoint items"
// @Failure 401 {object} utils.ErrorResponse "Authorization expired"
// @Failure 403 {object} utils.ErrorResponse "Customer action, scope or organization link required"
// @Failure 503 {object} utils.ErrorResponse "Provider temporarily unavailable"
// @Security BearerAuth
// @Router /connections/{provider}/data/{endpoint} [get]
func (h *ConnectionHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.service.Fetch(r.Context(), userID, chi.URLParam(r, "provider"), chi.URLParam(r, "endpoint"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to fetch provider data")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, dto.NewFetchResponse(result))
}
