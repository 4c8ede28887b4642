package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/services/invoice-service/internal/application"
	"github.com/wms-platform/services/invoice-service/pkg/errors"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/middleware"
)

// InvoiceHandler handles HTTP requests for invoices
type InvoiceHandler struct {
	service *application.InvoiceService
	logger  *logging.Logger
	now     func() time.Time
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(service *application.InvoiceService, logger *logging.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		service: service,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the invoice API on group, normally /api/v1
func (h *InvoiceHandler) RegisterRoutes(group gin.IRouter) {
	invoices := group.Group("/invoices")
	{
		invoices.POST("", h.CreateInvoice)
		invoices.GET("/:invoiceId", h.GetInvoice)
		invoices.POST("/:invoiceId/items", h.AddItem)
		invoices.DELETE("/:invoiceId/items/:index", h.RemoveItem)
		invoices.PUT("/:invoiceId/cancel", h.CancelInvoice)
		invoices.PUT("/:invoiceId/retry", h.RetryInvoice)
		invoices.PUT("/:invoiceId/due-date", h.UpdateDueDate)
		invoices.PUT("/:invoiceId/notes", h.UpdateNotes)
	}

	group.GET("/clients/:clientId/invoices", h.ListClientInvoices)
}

// CreateInvoice handles POST /api/v1/invoices
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var cmd application.CreateInvoiceCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]any{
		"client.id":   cmd.ClientID,
		"items.count": len(cmd.Items),
	})

	result, err := h.service.CreateInvoice(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// GetInvoice handles GET /api/v1/invoices/:invoiceId
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	invoiceID := c.Param("invoiceId")
	middleware.AddSpanAttributes(c, map[string]any{"invoice.id": invoiceID})

	result, err := h.service.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListClientInvoices handles GET /api/v1/clients/:clientId/invoices
func (h *InvoiceHandler) ListClientInvoices(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	clientID := c.Param("clientId")
	status := c.Query("status")

	middleware.AddSpanAttributes(c, map[string]any{
		"client.id":      clientID,
		"invoice.status": status,
	})

	result, err := h.service.ListClientInvoices(c.Request.Context(), clientID, status)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AddItem handles POST /api/v1/invoices/:invoiceId/items
func (h *InvoiceHandler) AddItem(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req application.InvoiceItemInput
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	invoiceID := c.Param("invoiceId")
	middleware.AddSpanAttributes(c, map[string]any{"invoice.id": invoiceID})

	result, err := h.service.AddItem(c.Request.Context(), invoiceID, req)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RemoveItem handles DELETE /api/v1/invoices/:invoiceId/items/:index
func (h *InvoiceHandler) RemoveItem(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		responder.RespondBadRequest("item index must be an integer")
		return
	}

	invoiceID := c.Param("invoiceId")
	middleware.AddSpanAttributes(c, map[string]any{
		"invoice.id": invoiceID,
		"item.index": index,
	})

	result, err := h.service.RemoveItem(c.Request.Context(), invoiceID, index)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// CancelInvoice handles PUT /api/v1/invoices/:invoiceId/cancel
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req application.CancelInvoiceCommand
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	invoiceID := c.Param("invoiceId")
	middleware.AddSpanAttributes(c, map[string]any{
		"invoice.id": invoiceID,
		"reason":     req.Reason,
	})

	result, err := h.service.Cancel(c.Request.Context(), invoiceID, h.now(), req.Reason)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RetryInvoice handles PUT /api/v1/invoices/:invoiceId/retry
func (h *InvoiceHandler) RetryInvoice(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req application.RetryInvoiceCommand
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	invoiceID := c.Param("invoiceId")
	middleware.AddSpanAttributes(c, map[string]any{"invoice.id": invoiceID})

	result, err := h.service.Retry(c.Request.Context(), invoiceID, req.PaymentMethodID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// UpdateDueDate handles PUT /api/v1/invoices/:invoiceId/due-date
func (h *InvoiceHandler) UpdateDueDate(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req application.UpdateDueDateCommand
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	invoiceID := c.Param("invoiceId")
	middleware.AddSpanAttributes(c, map[string]any{"invoice.id": invoiceID})

	result, err := h.service.UpdateDueDate(c.Request.Context(), invoiceID, req.DueDate)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// UpdateNotes handles PUT /api/v1/invoices/:invoiceId/notes
func (h *InvoiceHandler) UpdateNotes(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req application.UpdateNotesCommand
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	invoiceID := c.Param("invoiceId")

	result, err := h.service.UpdateNotes(c.Request.Context(), invoiceID, req.Notes)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// bindOptional binds a body whose fields are all optional; an empty body is accepted
func bindOptional(c *gin.Context, obj any) *errors.AppError {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return middleware.BindAndValidate(c, obj)
}
