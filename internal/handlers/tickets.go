package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/services"
)

// TicketIngester adds tickets to the corpus
type TicketIngester interface {
	Ingest(ctx context.Context, ticketID string) (bool, error)
	CorpusSize(ctx context.Context) (int, error)
}

// SimilarTicketFinder answers similarity queries against the corpus
type SimilarTicketFinder interface {
	QuerySimilar(ctx context.Context, query string, k int) ([]string, error)
	Reindex(ctx context.Context) (int, error)
	Retriever() string
}

// TicketsHandler handles corpus and similarity endpoints
type TicketsHandler struct {
	ingest        TicketIngester
	similarity    SimilarTicketFinder
	corpusBackend string
}

// NewTicketsHandler creates a new tickets handler
func NewTicketsHandler(ingest TicketIngester, similarity SimilarTicketFinder, corpusBackend string) *TicketsHandler {
	return &TicketsHandler{
		ingest:        ingest,
		similarity:    similarity,
		corpusBackend: corpusBackend,
	}
}

// SimilarTickets handles POST /rec and POST /load - top-k similar tickets
func (h *TicketsHandler) SimilarTickets(c echo.Context) error {
	var req models.SimilarTicketsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	ids, err := h.similarity.QuerySimilar(c.Request().Context(), req.Ticket, req.K)
	if err != nil {
		return h.fail(c, "similarity query failed", err)
	}

	results := make([]models.SimilarTicket, len(ids))
	for i, id := range ids {
		results[i] = models.SimilarTicket{TicketID: id}
	}
	return c.JSON(http.StatusOK, results)
}

// AddTicket handles POST /add - ingest a ticket into the corpus
func (h *TicketsHandler) AddTicket(c echo.Context) error {
	var req models.AddTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	added, err := h.ingest.Ingest(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "ingest failed", err)
	}

	return c.JSON(http.StatusOK, models.AddTicketResponse{
		Status:   "ok",
		TicketID: req.ID,
		Added:    added,
	})
}

// Reindex handles POST /reindex - rebuild the external vector index
func (h *TicketsHandler) Reindex(c echo.Context) error {
	n, err := h.similarity.Reindex(c.Request().Context())
	if err != nil {
		return h.fail(c, "reindex failed", err)
	}
	return c.JSON(http.StatusOK, models.ReindexResponse{Status: "ok", Indexed: n})
}

// CorpusStats handles GET /corpus/stats
func (h *TicketsHandler) CorpusStats(c echo.Context) error {
	n, err := h.ingest.CorpusSize(c.Request().Context())
	if err != nil {
		return h.fail(c, "corpus stats failed", err)
	}
	return c.JSON(http.StatusOK, models.CorpusStatsResponse{
		Records:   n,
		Backend:   h.corpusBackend,
		Retriever: h.similarity.Retriever(),
	})
}

func (h *TicketsHandler) fail(c echo.Context, msg string, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Errorf("%s: %v", msg, err)
	}
	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidQuery), errors.Is(err, services.ErrInvalidTicketID):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrIndexNotConfigured):
		return http.StatusConflict
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrSourceUnavailable), errors.Is(err, services.ErrIndexUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RegisterRoutes registers corpus and similarity routes
func (h *TicketsHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/rec", h.SimilarTickets)
	g.POST("/load", h.SimilarTickets)
	g.POST("/add", h.AddTicket)
	g.POST("/reindex", h.Reindex)
	g.GET("/corpus/stats", h.CorpusStats)
}
