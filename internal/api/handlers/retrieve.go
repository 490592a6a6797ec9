package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/models"
	"github.com/nexconsult/recibo-api/internal/services"
	"github.com/nexconsult/recibo-api/internal/utils"
)

// RetrieveHandler serves bill downloads
type RetrieveHandler struct {
	receipts services.ReceiptServiceInterface
	security config.SecurityConfig
	maxBody  int64
	logger   *logrus.Logger
}

// NewRetrieveHandler creates a new retrieve handler
func NewRetrieveHandler(receipts services.ReceiptServiceInterface, cfg *config.Config, logger *logrus.Logger) *RetrieveHandler {
	return &RetrieveHandler{
		receipts: receipts,
		security: cfg.Security,
		maxBody:  cfg.Server.MaxBodyBytes,
		logger:   logger,
	}
}

// Retrieve handles a bill download
// @Summary Descargar recibo
// @Description Consulta el portal de Cálidda con los datos del cliente y devuelve el recibo en PDF.
// @Description Acepta JSON o formulario, con los nombres de campo en inglés o los originales (numero_cliente, tipo_doc, numero_doc, anio, mes).
// @Tags Recibos
// @Accept json,x-www-form-urlencoded
// @Produce application/pdf,json
// @Param request body models.RetrieveRequest true "Datos del cliente"
// @Success 200 {file} binary "Recibo en PDF"
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ObstacleResponse
// @Failure 429 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /retrieve [post]
func (h *RetrieveHandler) Retrieve(c *gin.Context) {
	requestID := c.GetString("request_id")
	log := h.logger.WithField("request_id", requestID)

	if h.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}

	var req models.RetrieveRequest
	bindErr := c.ShouldBind(&req)

	if err := h.authorize(c, &req); err != nil {
		log.WithError(err).Warn("Request rejected")
		if errors.Is(err, automation.ErrForbiddenOrigin) {
			h.fail(c, http.StatusForbidden, models.ErrorCodeForbiddenOrigin, "Forbidden origin")
			return
		}
		h.fail(c, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Unauthorized")
		return
	}

	if bindErr != nil {
		log.WithError(bindErr).Warn("Invalid request body")
		c.JSON(http.StatusBadRequest, h.errorBody(c, "Bad Request", models.ErrorCodeInvalidRequest,
			"Cuerpo de la solicitud inválido", models.ValidationMessages(bindErr)))
		return
	}

	input := req.Input()
	if err := input.Validate(); err != nil {
		log.WithError(err).Warn("Missing identifiers")
		c.JSON(http.StatusBadRequest, h.errorBody(c, "Bad Request", models.ErrorCodeInvalidRequest,
			"Faltan datos: numero_cliente y numero_doc", models.ValidationMessages(err)))
		return
	}

	log.WithFields(logrus.Fields{
		"customer_number": input.CustomerNumber,
		"document_type":   input.DocumentType,
		"year":            input.Year,
		"month":           input.Month,
	}).Info("Retrieving bill")

	outcome := h.receipts.Retrieve(c.Request.Context(), automation.Request{
		CustomerNumber: input.CustomerNumber,
		DocumentType:   input.DocumentType,
		DocumentNumber: input.DocumentNumber,
		Year:           input.Year,
		Month:          input.Month,
	})

	h.respond(c, input, outcome)
}

// MethodNotAllowed tells browsers hitting the route directly to use POST
// @Summary Método no permitido
// @Tags Recibos
// @Produce json
// @Failure 405 {object} models.ErrorResponse
// @Router /retrieve [get]
func (h *RetrieveHandler) MethodNotAllowed(c *gin.Context) {
	c.Header("Allow", http.MethodPost)
	h.fail(c, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Usa POST "+c.FullPath())
}

// authorize checks the API key first and the origin allow-list second.
func (h *RetrieveHandler) authorize(c *gin.Context, req *models.RetrieveRequest) error {
	provided := c.GetHeader("X-API-Key")
	if provided == "" {
		provided = req.Key()
	}
	if h.security.APIKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.security.APIKey)) != 1 {
		return automation.ErrUnauthorized
	}

	if allow := h.security.AllowedOrigin; allow != "" {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = c.GetHeader("Referer")
		}
		if !strings.HasPrefix(origin, allow) {
			return fmt.Errorf("%w: %q", automation.ErrForbiddenOrigin, origin)
		}
	}
	return nil
}

func (h *RetrieveHandler) respond(c *gin.Context, input models.RetrievalInput, outcome automation.Outcome) {
	if doc, ok := automation.DocumentOf(outcome); ok {
		name := utils.SanitizeFilename(doc.Filename)
		if name == "" {
			name = automation.DefaultFilename(input.CustomerNumber)
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "application/pdf", doc.Bytes)
		return
	}

	switch v := outcome.(type) {
	case automation.NotFound:
		body := h.errorBody(c, "Not Found", models.ErrorCodeReceiptNotFound, v.Reason.Message(), nil)
		body.Reason = string(v.Reason)
		c.JSON(http.StatusNotFound, body)

	case automation.ObstacleDetected:
		c.JSON(http.StatusConflict, models.ObstacleResponse{
			Error:        "Conflict",
			Code:         models.ErrorCodeObstacle,
			Obstacle:     string(v.Kind),
			Message:      obstacleMessage(v.Kind),
			PortalURL:    h.receipts.LandingURL(),
			Instructions: "Abre el portal en tu navegador, completa la verificación y descarga el recibo con los datos enviados.",
			Request:      input,
			RequestID:    c.GetString("request_id"),
			Timestamp:    time.Now(),
		})

	case automation.TransportFailure:
		h.fail(c, http.StatusInternalServerError, models.ErrorCodeInternalError, "Error: "+v.Message())

	default:
		h.fail(c, http.StatusInternalServerError, models.ErrorCodeInternalError, fmt.Sprintf("Error: unexpected outcome %T", outcome))
	}
}

func obstacleMessage(kind automation.ObstacleKind) string {
	switch kind {
	case automation.ObstacleCloudflare:
		return "El portal mostró una verificación de seguridad del navegador."
	case automation.ObstacleRobotCheck:
		return "El portal solicitó verificar que no eres un robot."
	default:
		return "El portal mostró un CAPTCHA que requiere intervención humana."
	}
}

func (h *RetrieveHandler) errorBody(c *gin.Context, title, code, message string, fields []models.ValidationError) models.ErrorResponse {
	return models.ErrorResponse{
		Error:     title,
		Message:   message,
		Code:      code,
		Fields:    fields,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	}
}

func (h *RetrieveHandler) fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, h.errorBody(c, http.StatusText(status), code, message, nil))
}
