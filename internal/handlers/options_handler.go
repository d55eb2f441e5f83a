// -----------------------------------------------------------------------
// Options Handler - Live discovery of server-declared option values
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/scraper"
)

// OptionsHandler serves the currently available option values straight from
// the portal, so callers can see what periods are requestable before
// creating a task.
type OptionsHandler struct {
	pipeline *scraper.Pipeline
	logger   arbor.ILogger
}

// NewOptionsHandler creates a new options handler
func NewOptionsHandler(pipeline *scraper.Pipeline, logger arbor.ILogger) *OptionsHandler {
	return &OptionsHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// GetOptionsHandler fetches the portal form and returns its declared
// option values in page order
// GET /api/options
func (h *OptionsHandler) GetOptionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	options, err := h.pipeline.AvailableOptions(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch available options")

		var noOptions *scraper.NoOptionsError
		if errors.As(err, &noOptions) {
			WriteError(w, http.StatusBadGateway, "Portal declares no available options")
			return
		}
		WriteError(w, http.StatusBadGateway, "Failed to fetch options from portal")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"options": options,
		"count":   len(options),
	})
}
