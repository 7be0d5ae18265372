package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"devsolver/internal/adapter/fs"
	"devsolver/internal/adapter/store"
	"devsolver/internal/domain"
	"devsolver/internal/port"
	"devsolver/internal/usecase"
)

type Answerer interface {
	Answer(ctx context.Context, q domain.Question) (*domain.Answer, error)
}

type Catalog interface {
	Technologies(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, technology string) (domain.StoreStats, error)
}

type Ingester interface {
	IngestText(ctx context.Context, technology string, meta domain.SourceMeta, content string) (domain.SourceMeta, error)
	IngestURL(ctx context.Context, technology, url string, label domain.SourceLabel) (domain.SourceMeta, error)
}

type RequestHandler struct {
	searcher port.Searcher
	answerer Answerer
	catalog  Catalog
	ingester Ingester // nil disables document uploads
}

func NewRequestHandler(searcher port.Searcher, answerer Answerer, catalog Catalog, ingester Ingester) *RequestHandler {
	return &RequestHandler{
		searcher: searcher,
		answerer: answerer,
		catalog:  catalog,
		ingester: ingester,
	}
}

func (h *RequestHandler) HandleSearch(c *fiber.Ctx) error {
	var params SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	results, err := h.searcher.HybridSearch(c.UserContext(), params.Query, params.Technology, params.TopK, domain.SourceLabel(params.Source))
	if err != nil {
		return err
	}
	if results == nil {
		results = []domain.ScoredResult{}
	}

	return c.JSON(SearchResponse{
		Query:      params.Query,
		Technology: params.Technology,
		Results:    results,
		Timestamp:  time.Now(),
	})
}

func (h *RequestHandler) HandleAsk(c *fiber.Ctx) error {
	var params AskParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	answer, err := h.answerer.Answer(c.UserContext(), params.Question())
	if err != nil {
		return err
	}
	return c.JSON(answer)
}

func (h *RequestHandler) HandleTechnologies(c *fiber.Ctx) error {
	techs, err := h.catalog.Technologies(c.UserContext())
	if err != nil {
		return err
	}
	if techs == nil {
		techs = []string{}
	}
	return c.JSON(fiber.Map{"technologies": techs})
}

func (h *RequestHandler) HandleStats(c *fiber.Ctx) error {
	tech := c.Params("tech")
	stats, err := h.catalog.Stats(c.UserContext(), tech)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(tech, "technology")
	}
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *RequestHandler) HandleAddDocument(c *fiber.Ctx) error {
	if h.ingester == nil {
		return NewError(fiber.StatusNotImplemented, "document ingest is disabled")
	}

	var params DocumentParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	var (
		meta  domain.SourceMeta
		err   error
		label = domain.SourceLabel(params.Label)
	)
	if params.Content != "" {
		meta, err = h.ingester.IngestText(c.UserContext(), params.Technology, domain.SourceMeta{
			Label: label,
			Title: params.Title,
			URL:   params.URL,
		}, params.Content)
	} else {
		meta, err = h.ingester.IngestURL(c.UserContext(), params.Technology, params.URL, label)
	}

	switch {
	case errors.Is(err, usecase.ErrNoContent), errors.Is(err, fs.ErrUnsupported):
		return ErrUnprocessable(err.Error())
	case errors.Is(err, usecase.ErrInvalidInput):
		return NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(meta)
}
