package config

import (
	"fmt"
	"time"
)

// TimeoutConfig groups every bounded wait of a retrieval
type TimeoutConfig struct {
	// Navegação e estabilização da página
	Navigation time.Duration `json:"navigation"`
	Idle       time.Duration `json:"idle"`

	// Localização do resultado do cliente
	Result         time.Duration `json:"result"`
	ResultInterval time.Duration `json:"result_interval"`

	// Captura do PDF
	TriggerWindow   time.Duration `json:"trigger_window"`
	TriggerInterval time.Duration `json:"trigger_interval"`
	ScopedTrigger   time.Duration `json:"scoped_trigger"`
	HrefWindow      time.Duration `json:"href_window"`
	HrefInterval    time.Duration `json:"href_interval"`
	Download        time.Duration `json:"download"`
	Popup           time.Duration `json:"popup"`
	Grace           time.Duration `json:"grace"`
	Capture         time.Duration `json:"capture"`

	// Teto de uma requisição completa
	Request time.Duration `json:"request"`
}

// DefaultTimeoutConfig retorna a configuração padrão de timeouts
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Navigation: 180 * time.Second, // 3 minutos
		Idle:       120 * time.Second, // 2 minutos

		Result:         120 * time.Second,
		ResultInterval: 500 * time.Millisecond,

		TriggerWindow:   45 * time.Second,
		TriggerInterval: time.Second,
		ScopedTrigger:   30 * time.Second,
		HrefWindow:      45 * time.Second,
		HrefInterval:    time.Second,
		Download:        120 * time.Second,
		Popup:           15 * time.Second,
		Grace:           3 * time.Second,
		Capture:         180 * time.Second, // 3 minutos

		Request: 300 * time.Second, // 5 minutos
	}
}

// LoadTimeoutConfig reads TIMEOUT_* overrides on top of the defaults
func LoadTimeoutConfig() TimeoutConfig {
	d := DefaultTimeoutConfig()
	return TimeoutConfig{
		Navigation:      getEnvAsDuration("TIMEOUT_NAVIGATION", d.Navigation),
		Idle:            getEnvAsDuration("TIMEOUT_IDLE", d.Idle),
		Result:          getEnvAsDuration("TIMEOUT_RESULT", d.Result),
		ResultInterval:  getEnvAsDuration("TIMEOUT_RESULT_INTERVAL", d.ResultInterval),
		TriggerWindow:   getEnvAsDuration("TIMEOUT_TRIGGER_WINDOW", d.TriggerWindow),
		TriggerInterval: getEnvAsDuration("TIMEOUT_TRIGGER_INTERVAL", d.TriggerInterval),
		ScopedTrigger:   getEnvAsDuration("TIMEOUT_TRIGGER_SCOPED", d.ScopedTrigger),
		HrefWindow:      getEnvAsDuration("TIMEOUT_HREF_WINDOW", d.HrefWindow),
		HrefInterval:    getEnvAsDuration("TIMEOUT_HREF_INTERVAL", d.HrefInterval),
		Download:        getEnvAsDuration("TIMEOUT_DOWNLOAD", d.Download),
		Popup:           getEnvAsDuration("TIMEOUT_POPUP", d.Popup),
		Grace:           getEnvAsDuration("TIMEOUT_GRACE", d.Grace),
		Capture:         getEnvAsDuration("TIMEOUT_CAPTURE", d.Capture),
		Request:         getEnvAsDuration("TIMEOUT_REQUEST", d.Request),
	}
}

func (t TimeoutConfig) validate() []error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"TIMEOUT_NAVIGATION":       t.Navigation,
		"TIMEOUT_IDLE":             t.Idle,
		"TIMEOUT_RESULT":           t.Result,
		"TIMEOUT_RESULT_INTERVAL":  t.ResultInterval,
		"TIMEOUT_TRIGGER_WINDOW":   t.TriggerWindow,
		"TIMEOUT_TRIGGER_INTERVAL": t.TriggerInterval,
		"TIMEOUT_TRIGGER_SCOPED":   t.ScopedTrigger,
		"TIMEOUT_HREF_WINDOW":      t.HrefWindow,
		"TIMEOUT_HREF_INTERVAL":    t.HrefInterval,
		"TIMEOUT_DOWNLOAD":         t.Download,
		"TIMEOUT_POPUP":            t.Popup,
		"TIMEOUT_GRACE":            t.Grace,
		"TIMEOUT_CAPTURE":          t.Capture,
		"TIMEOUT_REQUEST":          t.Request,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if t.ScopedTrigger > t.TriggerWindow {
		errs = append(errs, fmt.Errorf("TIMEOUT_TRIGGER_SCOPED (%s) must not exceed TIMEOUT_TRIGGER_WINDOW (%s)", t.ScopedTrigger, t.TriggerWindow))
	}
	return errs
}
