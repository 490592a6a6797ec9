package automation_test

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/automation"
)

const portalURL = "https://portal.example/atencion-al-cliente/descarga-tu-recibo"

const portalForm = `<html><body>
<form id="consulta">
  <input name="numeroCliente" placeholder="Número de cliente">
  <select name="tipoDocumento">
    <option value="">Seleccione</option>
    <option value="DNI">DNI - Documento Nacional de Identidad</option>
    <option value="CE">Carné de extranjería</option>
    <option value="RUC">RUC</option>
  </select>
  <input name="numeroDocumento" placeholder="Número de documento">
  <select name="anio"><option value="2024">2024</option><option value="2025">2025</option></select>
  <select name="mes">
    <option value="01">Enero</option><option value="02">Febrero</option><option value="03">Marzo</option>
  </select>
  <button type="button">Consultar</button>
</form>
</body></html>`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fastCapture() automation.CaptureConfig {
	return automation.CaptureConfig{
		Budget:          3 * time.Second,
		TriggerWindow:   150 * time.Millisecond,
		TriggerInterval: 10 * time.Millisecond,
		ScopedWindow:    80 * time.Millisecond,
		HrefWindow:      200 * time.Millisecond,
		HrefInterval:    10 * time.Millisecond,
		DownloadWait:    250 * time.Millisecond,
		PopupBudget:     150 * time.Millisecond,
		Grace:           50 * time.Millisecond,
	}
}

func fastSettings() automation.Settings {
	return automation.Settings{
		LandingURL:     portalURL,
		ScopeResults:   true,
		IdleTimeout:    50 * time.Millisecond,
		ResultTimeout:  300 * time.Millisecond,
		ResultInterval: 10 * time.Millisecond,
		Capture:        fastCapture(),
	}
}

// resultsPage renders the form followed by one table row per customer.
func resultsPage(rows ...string) string {
	html := `<html><body><table id="resultados">`
	for _, row := range rows {
		html += "<tr>" + row + "</tr>"
	}
	return html + `</table></body></html>`
}
