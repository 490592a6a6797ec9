package models

import "time"

// Códigos de error estandarizados
const (
	ErrorCodeInvalidRequest   = "INVALID_REQUEST"
	ErrorCodeUnauthorized     = "UNAUTHORIZED"
	ErrorCodeForbiddenOrigin  = "FORBIDDEN_ORIGIN"
	ErrorCodeReceiptNotFound  = "RECEIPT_NOT_FOUND"
	ErrorCodeObstacle         = "OBSTACLE_DETECTED"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
	ErrorCodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	ErrorCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrorCodeNotFound         = "NOT_FOUND"
)

// ErrorResponse representa una respuesta de error
// @Description Estructura de error devuelta por todos los endpoints
type ErrorResponse struct {
	// Resumen del error
	// @example "Not Found"
	Error string `json:"error" example:"Not Found"`
	// Mensaje legible
	// @example "No se encontró ningún resultado para el número de cliente consultado."
	Message string `json:"message" example:"No se encontró ningún resultado para el número de cliente consultado."`
	// Código del error
	// @example "RECEIPT_NOT_FOUND"
	Code string `json:"code,omitempty" example:"RECEIPT_NOT_FOUND"`
	// Motivo detallado (solo en 404)
	// @example "no_result"
	Reason string `json:"reason,omitempty" example:"no_result"`
	// Errores de validación por campo (solo en 400)
	Fields []ValidationError `json:"fields,omitempty"`
	// ID de la solicitud para rastreo
	RequestID string    `json:"request_id,omitempty" example:"3f1c2a9e-5b7d-4c1e-9a8f-0d2e6b4c7a10"`
	Timestamp time.Time `json:"timestamp" example:"2025-03-10T10:30:00Z"`
	Path      string    `json:"path" example:"/retrieve"`
}

// ValidationError describe un campo inválido
type ValidationError struct {
	Field   string `json:"field" example:"customerNumber"`
	Message string `json:"message" example:"es obligatorio"`
}

// ObstacleResponse se devuelve cuando el portal muestra un desafío (CAPTCHA)
// @Description El portal exige intervención humana. Incluye los datos enviados para completar la consulta manualmente.
type ObstacleResponse struct {
	// @example "Conflict"
	Error string `json:"error" example:"Conflict"`
	// @example "OBSTACLE_DETECTED"
	Code string `json:"code" example:"OBSTACLE_DETECTED"`
	// Tipo de desafío detectado
	// @example "recaptcha"
	Obstacle string `json:"obstacle" example:"recaptcha"`
	// Mensaje legible
	Message string `json:"message" example:"El portal solicitó verificar que no eres un robot."`
	// Página donde completar la consulta manualmente
	PortalURL string `json:"portal_url" example:"https://www.calidda.com.pe/atencion-al-cliente/descarga-tu-recibo"`
	// Pasos sugeridos
	Instructions string `json:"instructions"`
	// Datos enviados por el cliente
	Request   RetrievalInput `json:"request"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp" example:"2025-03-10T10:30:00Z"`
}

// HealthResponse representa la respuesta del health check
type HealthResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp time.Time              `json:"timestamp" example:"2025-03-10T10:30:00Z"`
	Version   string                 `json:"version" example:"1.0.0"`
	Services  map[string]ServiceInfo `json:"services"`
	Uptime    string                 `json:"uptime" example:"2h30m45s"`
}

// ServiceInfo representa la salud de un servicio
type ServiceInfo struct {
	Status    string                 `json:"status" example:"healthy"`
	LastCheck time.Time              `json:"last_check" example:"2025-03-10T10:30:00Z"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// MetricsResponse representa las métricas de la API
type MetricsResponse struct {
	Retrievals RetrievalMetrics       `json:"retrievals"`
	Browser    map[string]interface{} `json:"browser"`
	System     SystemMetrics          `json:"system"`
	Timestamp  time.Time              `json:"timestamp" example:"2025-03-10T10:30:00Z"`
}

// RetrievalMetrics agrega los resultados de las descargas
type RetrievalMetrics struct {
	Total       int64            `json:"total" example:"120"`
	Success     int64            `json:"success" example:"100"`
	SuccessRate float64          `json:"success_rate" example:"83.33"`
	ByOutcome   map[string]int64 `json:"by_outcome"`
}

// SystemMetrics representa métricas del proceso
type SystemMetrics struct {
	MemoryUsageMB float64 `json:"memory_usage_mb" example:"42.5"`
	Goroutines    int     `json:"goroutines" example:"25"`
}
