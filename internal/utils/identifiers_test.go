package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadMonth(t *testing.T) {
	tests := map[string]string{
		"3":     "03",
		" 12 ":  "12",
		"07":    "07",
		"marzo": "marzo",
		"":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, PadMonth(in), "PadMonth(%q)", in)
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "numero de cliente", NormalizeText("  Número   de\tCliente "))
	assert.Equal(t, "descargar recibo", NormalizeText("DESCARGAR Recibo"))
	assert.Equal(t, "tipo d'documento", NormalizeText("Tipo d’Documento"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"recibo_123.pdf":        "recibo_123.pdf",
		"../../etc/passwd":      "passwd",
		`C:\tmp\R 2025-03.pdf`:  "R_2025-03.pdf",
		"reçibo \"marzo\".pdf":  "re_ibo_marzo_.pdf",
		"/":                     "",
		"..":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "SanitizeFilename(%q)", in)
	}
}
