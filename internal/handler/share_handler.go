package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "timeronline/backend/internal/errors"
	"timeronline/backend/internal/service"
)

// ShareHandler serves the public, storage-free token endpoints.
type ShareHandler struct {
	shareService *service.ShareService
}

func NewShareHandler(shareService *service.ShareService) *ShareHandler {
	return &ShareHandler{shareService: shareService}
}

func (h *ShareHandler) Decode(c *gin.Context) {
	c.JSON(http.StatusOK, h.shareService.Inspect(c.Query("v")))
}

func (h *ShareHandler) Preview(c *gin.Context) {
	c.JSON(http.StatusOK, h.shareService.Preview(c.Query("v")))
}

func (h *ShareHandler) Redirect(c *gin.Context) {
	page, ok, err := h.shareService.RedirectPage(c.Query("v"))
	if err != nil {
		log.Error().Err(err).Msg("failed to render share page")
		writeError(c, apperrors.Internal("failed to render share page"))
		return
	}
	if !ok {
		c.Redirect(http.StatusFound, "/")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
