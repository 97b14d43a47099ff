package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"parley/internal/core"
	"parley/internal/media"
)

// fail writes the error envelope every endpoint shares and maps the
// core sentinels onto HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "please login to access this resource"
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrInvalidRequest):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, media.ErrTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "file too large"
	default:
		log.Error().Str("module", "adapters.http").Err(err).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
}

func ok(c *gin.Context, body gin.H) {
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

func created(c *gin.Context, body gin.H) {
	body["success"] = true
	c.JSON(http.StatusCreated, body)
}
