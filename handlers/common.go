package handlers

import (
	"errors"
	"flipbook/models"
	"flipbook/processing"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Response struct {
	Error string `json:"error"`
}

// ErrorResponse is used by the ingestion endpoints, message carries the raw cause
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	// Predefined errors
	OKResponse       = Response{}
	NotFoundResponse = Response{"not found"}
	DBError1Response = Response{"DB Error 1"}
	DBError2Response = Response{"DB Error 2"}
	DBError3Response = Response{"DB Error 3"}
)

// abortWithError maps ingestion errors to HTTP responses
func abortWithError(c *gin.Context, err error) {
	var perr *models.PersistenceError
	var placementErr *processing.PlacementError
	switch {
	case errors.Is(err, processing.ErrNoDataReceived):
		c.JSON(http.StatusBadRequest, ErrorResponse{"no data received", err.Error()})
	case errors.As(err, &placementErr):
		log.Error().Err(err).Int("index", placementErr.Index).Msg("placement failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{"upload failed", err.Error()})
	case errors.As(err, &perr):
		log.Error().Err(err).Msg("persistence failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{"upload failed", err.Error()})
	default:
		log.Error().Err(err).Msg("ingestion failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{"upload failed", err.Error()})
	}
}
