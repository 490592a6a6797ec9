package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultDocumentType es el tipo de documento asumido cuando no se informa
const DefaultDocumentType = "DNI"

// FlexString acepta tanto texto como números en JSON ("123" o 123)
type FlexString string

// UnmarshalJSON implementa json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = FlexString(n.String())
		return nil
	}
}

// UnmarshalParam permite el binding de formularios de gin
func (f *FlexString) UnmarshalParam(param string) error {
	*f = FlexString(param)
	return nil
}

func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// RetrieveRequest representa una solicitud de descarga de recibo
// @Description Datos del cliente para descargar el recibo en PDF. Acepta también los nombres de campo del formulario original (numero_cliente, tipo_doc, numero_doc, anio, mes, api_key).
type RetrieveRequest struct {
	// Número de cliente (suministro)
	// @example "12345678"
	CustomerNumber FlexString `json:"customerNumber" form:"customerNumber" swaggertype:"string" example:"12345678"`
	// Tipo de documento del titular
	// @example "DNI"
	DocumentType FlexString `json:"documentType" form:"documentType" swaggertype:"string" example:"DNI"`
	// Número de documento del titular
	// @example "87654321"
	DocumentNumber FlexString `json:"documentNumber" form:"documentNumber" swaggertype:"string" example:"87654321"`
	// Año del recibo (opcional)
	// @example "2025"
	Year FlexString `json:"year" form:"year" swaggertype:"string" example:"2025"`
	// Mes del recibo, 1 a 12 (opcional)
	// @example "3"
	Month FlexString `json:"month" form:"month" swaggertype:"string" example:"3"`
	// Clave de API, alternativa al encabezado X-API-Key
	APIKey string `json:"apiKey" form:"apiKey"`

	NumeroCliente FlexString `json:"numero_cliente" form:"numero_cliente" swaggerignore:"true"`
	TipoDoc       FlexString `json:"tipo_doc" form:"tipo_doc" swaggerignore:"true"`
	NumeroDoc     FlexString `json:"numero_doc" form:"numero_doc" swaggerignore:"true"`
	Anio          FlexString `json:"anio" form:"anio" swaggerignore:"true"`
	Mes           FlexString `json:"mes" form:"mes" swaggerignore:"true"`
	LegacyAPIKey  string     `json:"api_key" form:"api_key" swaggerignore:"true"`
}

// RetrievalInput son los identificadores normalizados de una solicitud
type RetrievalInput struct {
	CustomerNumber string `json:"customerNumber" validate:"required,max=32"`
	DocumentType   string `json:"documentType" validate:"max=32"`
	DocumentNumber string `json:"documentNumber" validate:"required,max=32"`
	Year           string `json:"year,omitempty" validate:"omitempty,numeric,len=4"`
	Month          string `json:"month,omitempty" validate:"omitempty,month"`
}

func firstOf(values ...FlexString) string {
	for _, v := range values {
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}

// Key devuelve la clave de API enviada en el cuerpo, si existe
func (r *RetrieveRequest) Key() string {
	if r.APIKey != "" {
		return r.APIKey
	}
	return r.LegacyAPIKey
}

// Input unifica los nombres de campo en inglés y los originales
func (r *RetrieveRequest) Input() RetrievalInput {
	input := RetrievalInput{
		CustomerNumber: firstOf(r.CustomerNumber, r.NumeroCliente),
		DocumentType:   firstOf(r.DocumentType, r.TipoDoc),
		DocumentNumber: firstOf(r.DocumentNumber, r.NumeroDoc),
		Year:           firstOf(r.Year, r.Anio),
		Month:          firstOf(r.Month, r.Mes),
	}
	if input.DocumentType == "" {
		input.DocumentType = DefaultDocumentType
	}
	return input
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	_ = v.RegisterValidation("month", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Field().String())
		return err == nil && n >= 1 && n <= 12
	})
	return v
}

// Validate verifica los campos obligatorios y los rangos de año y mes
func (in RetrievalInput) Validate() error {
	return validate.Struct(in)
}

// ValidationMessages traduce los errores del validador a mensajes legibles
func ValidationMessages(err error) []ValidationError {
	var out []ValidationError
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: "body", Message: err.Error()}}
	}
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "es obligatorio"
		case "month":
			msg = "debe ser un mes entre 1 y 12"
		case "len", "numeric":
			msg = "debe ser un año de cuatro dígitos"
		case "max":
			msg = "es demasiado largo"
		default:
			msg = "no es válido"
		}
		out = append(out, ValidationError{Field: fe.Field(), Message: msg})
	}
	return out
}
