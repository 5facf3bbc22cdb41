package http

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AuthAPI is the account lifecycle the handlers drive. *services.AuthService
// implements it.
type AuthAPI interface {
	Register(ctx context.Context, email, password, displayName string) (*services.TokenPair, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, principal *models.User) error
}

// Handler holds the HTTP endpoints.
type Handler struct {
	auth        AuthAPI
	logger      logging.Logger
	serviceName string
}

func NewHandler(a AuthAPI, logger logging.Logger, serviceName string) *Handler {
	return &Handler{auth: a, logger: logger, serviceName: serviceName}
}

// bind decodes the JSON body into req and validates it.
func bind[T interface{ Validate() error }](c *gin.Context, req *T) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return common.Validation("invalid request body", nil)
	}
	if err := (*req).Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	pair, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, newTokenResponse(pair))
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) Logout(c *gin.Context) {
	user, _ := Principal(c)
	if err := h.auth.Logout(c.Request.Context(), user); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := Principal(c)
	if !ok {
		writeError(c, h.logger, common.Unauthorized(common.InvalidTokenMessage))
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Service: h.serviceName})
}

func (h *Handler) NotFound(c *gin.Context) {
	writeError(c, h.logger, common.NotFound("not found"))
}
