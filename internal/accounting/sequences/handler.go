package sequences

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/platform/httpx"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

// Handler exposes the generator over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers sequence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{kind}/next", h.Next)
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	number, err := h.service.Next(r.Context(), internalShared.TenantFromContext(r.Context()), kind)
	if err != nil {
		h.logger.Warn("next sequence", slog.String("kind", string(kind)), slog.Any("error", err))
		httpx.RespondMapped(w, err, shared.HTTPStatus)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"kind": string(kind), "number": number})
}
