package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dkeller/form4ingest/internal/models"
	"github.com/dkeller/form4ingest/internal/repository"
	"github.com/dkeller/form4ingest/internal/services"
	"github.com/gin-gonic/gin"
)

// IngestHandler handles ingestion and filing-query endpoints
type IngestHandler struct {
	ingestSvc  *services.IngestionService
	filingRepo *repository.FilingRepository
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(ingestSvc *services.IngestionService, filingRepo *repository.FilingRepository) *IngestHandler {
	return &IngestHandler{
		ingestSvc:  ingestSvc,
		filingRepo: filingRepo,
	}
}

// Ingest handles POST /admin/ingest
// @Summary Ingest a batch of filings
// @Description Carries each filing reference through fetch, split, extract, and persist
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.IngestRequest true "Filing references and options"
// @Success 200 {object} models.BatchResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/ingest [post]
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if len(req.Filings) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "filings must not be empty",
		})
		return
	}

	refs := make([]models.FilingReference, 0, len(req.Filings))
	for _, f := range req.Filings {
		accession, err := models.ParseAccession(f.AccessionNumber)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
		ref := models.FilingReference{
			AccessionNumber: accession,
			CIK:             f.CIK,
			FormType:        f.FormType,
		}
		if ref.FormType == "" {
			ref.FormType = "4"
		}
		if f.FilingDate != "" {
			filed, err := time.Parse("2006-01-02", f.FilingDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Error:   "invalid_request",
					Message: "filing_date must be in YYYY-MM-DD format",
				})
				return
			}
			ref.FilingDate = filed
		}
		refs = append(refs, ref)
	}

	result, err := h.ingestSvc.Run(c.Request.Context(), refs, models.IngestOptions{
		Limit:       req.Limit,
		Reprocess:   req.Reprocess,
		WriteRawXml: req.WriteRawXml,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetFiling handles GET /filings/:accession
// @Summary Get a persisted filing
// @Description Returns the persisted relationship graph for one accession number
// @Tags filings
// @Produce json
// @Param accession path string true "Accession number (with or without separators)"
// @Success 200 {object} models.FilingResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /filings/{accession} [get]
func (h *IngestHandler) GetFiling(c *gin.Context) {
	accession, err := models.ParseAccession(c.Param("accession"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	filing, err := h.filingRepo.GetFiling(c.Request.Context(), accession)
	if errors.Is(err, repository.ErrFilingNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "no filing persisted for accession " + accession.String(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, filing)
}
