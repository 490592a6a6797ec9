package automation

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request missing required identifiers.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks a request without a matching API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbiddenOrigin marks a request from an origin outside the allow-list.
	ErrForbiddenOrigin = errors.New("forbidden origin")

	// ErrSessionClosed is returned by Page implementations once the browser
	// session has crashed or been released.
	ErrSessionClosed = errors.New("browser session closed")
)

// ObstacleKind names the challenge found on the portal.
type ObstacleKind string

const (
	ObstacleRecaptcha  ObstacleKind = "recaptcha"
	ObstacleHCaptcha   ObstacleKind = "hcaptcha"
	ObstacleTurnstile  ObstacleKind = "turnstile"
	ObstacleCloudflare ObstacleKind = "cloudflare_challenge"
	ObstacleCaptcha    ObstacleKind = "captcha"
	ObstacleRobotCheck ObstacleKind = "robot_check"
)

// ObstacleError aborts a retrieval when a challenge blocks automation.
type ObstacleError struct {
	Kind ObstacleKind
}

func (e *ObstacleError) Error() string {
	return fmt.Sprintf("obstacle detected: %s", e.Kind)
}

// NotFoundReason distinguishes why no document was captured.
type NotFoundReason string

const (
	ReasonNoResult  NotFoundReason = "no_result"
	ReasonNoControl NotFoundReason = "no_control"
	ReasonNoBytes   NotFoundReason = "clicked_no_bytes"
)

// Message returns the human readable explanation sent to callers.
func (r NotFoundReason) Message() string {
	switch r {
	case ReasonNoResult:
		return "No se encontró ningún resultado para el número de cliente consultado."
	case ReasonNoBytes:
		return "Se hizo clic en un botón de descarga pero no se pudo capturar el PDF (descarga en nueva pestaña o bloqueada)."
	default:
		return "No se encontró ningún botón/enlace de descarga tras consultar."
	}
}

// NotFoundError reports that every capture path was exhausted.
type NotFoundError struct {
	Reason NotFoundReason
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.Reason)
}

// TransportError wraps a failure of a browser primitive.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// fatal reports whether err must stop the flow rather than count as a miss.
func fatal(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrSessionClosed) || ctx.Err() != nil
}
