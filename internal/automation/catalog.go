package automation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nexconsult/recibo-api/internal/utils"
)

// MatchOp is the attribute comparison a Candidate performs.
type MatchOp string

const (
	OpEquals   MatchOp = "equals"
	OpContains MatchOp = "contains"
	OpSuffix   MatchOp = "suffix"
	OpPresent  MatchOp = "present"
)

// Candidate is one declarative locator: a structural CSS match plus an
// optional visible-text marker checked after the structural match.
type Candidate struct {
	Tag   string  `yaml:"tag"`
	Attr  string  `yaml:"attr,omitempty"`
	Op    MatchOp `yaml:"op,omitempty"`
	Value string  `yaml:"value,omitempty"`
	// Fold makes the attribute comparison case-insensitive.
	Fold bool `yaml:"fold,omitempty"`
	// Text, when set, must be contained in the element's normalized label.
	Text string `yaml:"text,omitempty"`
}

// Selector renders the structural part of the candidate as CSS.
func (c Candidate) Selector() string {
	tag := c.Tag
	if c.Attr == "" {
		if tag == "" {
			return "*"
		}
		return tag
	}

	flag := ""
	if c.Fold {
		flag = " i"
	}
	value := cssQuote(c.Value)

	var attr string
	switch c.Op {
	case OpPresent:
		attr = fmt.Sprintf("[%s]", c.Attr)
	case OpContains:
		attr = fmt.Sprintf("[%s*=%s%s]", c.Attr, value, flag)
	case OpSuffix:
		attr = fmt.Sprintf("[%s$=%s%s]", c.Attr, value, flag)
	default:
		attr = fmt.Sprintf("[%s=%s%s]", c.Attr, value, flag)
	}
	return tag + attr
}

// String is used in logs.
func (c Candidate) String() string {
	if c.Text != "" {
		return fmt.Sprintf("%s:text(%s)", c.Selector(), c.Text)
	}
	return c.Selector()
}

// matches applies the text marker to an element already matched structurally.
func (c Candidate) matches(el Element) bool {
	if c.Text == "" {
		return true
	}
	return strings.Contains(utils.NormalizeText(el.Label()), utils.NormalizeText(c.Text))
}

func cssQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// Field is a logical form field.
type Field string

const (
	FieldCustomerNumber Field = "customer_number"
	FieldDocumentType   Field = "document_type"
	FieldDocumentNumber Field = "document_number"
	FieldYear           Field = "year"
	FieldMonth          Field = "month"
)

// FieldKind decides how a located element is populated.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindSelect FieldKind = "select"
)

// FieldSpec is the ordered candidate list for one logical field.
type FieldSpec struct {
	Field      Field       `yaml:"field"`
	Kind       FieldKind   `yaml:"kind"`
	Candidates []Candidate `yaml:"candidates"`
}

// Catalog holds every ordered locator list the flow relies on. It is built
// once at startup and only read afterwards.
type Catalog struct {
	Fields           []FieldSpec `yaml:"fields"`
	QueryActions     []Candidate `yaml:"query_actions"`
	DownloadControls string      `yaml:"download_controls"`
	DownloadMarkers  []string    `yaml:"download_markers"`
	PDFAnchors       []Candidate `yaml:"pdf_anchors"`
	ResultContainers []string    `yaml:"result_containers"`
}

// Field returns the locator definition for f.
func (c *Catalog) Field(f Field) (FieldSpec, bool) {
	for _, spec := range c.Fields {
		if spec.Field == f {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

func inputNamed(name string) Candidate {
	return Candidate{Tag: "input", Attr: "name", Op: OpEquals, Value: name}
}

func selectNamed(name string) Candidate {
	return Candidate{Tag: "select", Attr: "name", Op: OpEquals, Value: name}
}

func placeholderContaining(text string) Candidate {
	return Candidate{Tag: "input", Attr: "placeholder", Op: OpContains, Value: text, Fold: true}
}

// DefaultCatalog returns the built-in locators for the portal form.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Fields: []FieldSpec{
			{
				Field: FieldCustomerNumber,
				Kind:  KindText,
				Candidates: []Candidate{
					inputNamed("numeroCliente"),
					inputNamed("numCliente"),
					inputNamed("nroCliente"),
					inputNamed("numero_cliente"),
					placeholderContaining("cliente"),
					placeholderContaining("suministro"),
				},
			},
			{
				Field: FieldDocumentType,
				Kind:  KindSelect,
				Candidates: []Candidate{
					selectNamed("tipoDocumento"),
					selectNamed("tipo_doc"),
					{Tag: "select"},
				},
			},
			{
				Field: FieldDocumentNumber,
				Kind:  KindText,
				Candidates: []Candidate{
					inputNamed("numeroDocumento"),
					inputNamed("nroDocumento"),
					inputNamed("numero_doc"),
					inputNamed("documento"),
					placeholderContaining("documento"),
				},
			},
			{
				Field:      FieldYear,
				Kind:       KindSelect,
				Candidates: []Candidate{selectNamed("anio"), selectNamed("year")},
			},
			{
				Field:      FieldMonth,
				Kind:       KindSelect,
				Candidates: []Candidate{selectNamed("mes"), selectNamed("month")},
			},
		},
		QueryActions: []Candidate{
			{Tag: "button", Text: "Consultar"},
			{Tag: "button", Text: "Buscar"},
			{Tag: "a", Text: "Consultar"},
			{Tag: "a", Text: "Buscar"},
			{Tag: "button", Attr: "type", Op: OpEquals, Value: "submit"},
			{Tag: "input", Attr: "type", Op: OpEquals, Value: "submit"},
		},
		DownloadControls: "a, button",
		DownloadMarkers:  []string{"descargar", "recibo", "ver recibo", "pdf", "imprimir"},
		PDFAnchors: []Candidate{
			{Tag: "a", Attr: "href", Op: OpSuffix, Value: ".pdf", Fold: true},
			{Tag: "a", Attr: "href", Op: OpContains, Value: ".pdf", Fold: true},
		},
		ResultContainers: []string{
			"tr",
			"li",
			"article",
			`[class*="card" i]`,
			`[class*="result" i]`,
			`[class*="row" i]`,
		},
	}
}

// LoadCatalog returns the default catalog with any section present in the
// YAML file at path replacing its built-in counterpart. Field lists are
// replaced per field.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	for _, spec := range override.Fields {
		if len(spec.Candidates) == 0 {
			continue
		}
		replaced := false
		for i := range catalog.Fields {
			if catalog.Fields[i].Field == spec.Field {
				if spec.Kind != "" {
					catalog.Fields[i].Kind = spec.Kind
				}
				catalog.Fields[i].Candidates = spec.Candidates
				replaced = true
			}
		}
		if !replaced {
			return nil, fmt.Errorf("unknown field %q in catalog file", spec.Field)
		}
	}
	if len(override.QueryActions) > 0 {
		catalog.QueryActions = override.QueryActions
	}
	if override.DownloadControls != "" {
		catalog.DownloadControls = override.DownloadControls
	}
	if len(override.DownloadMarkers) > 0 {
		catalog.DownloadMarkers = override.DownloadMarkers
	}
	if len(override.PDFAnchors) > 0 {
		catalog.PDFAnchors = override.PDFAnchors
	}
	if len(override.ResultContainers) > 0 {
		catalog.ResultContainers = override.ResultContainers
	}
	return catalog, nil
}

// tryFirstMatching walks candidates in order and stops at the first one
// attempt reports as successful. An error from attempt aborts the walk.
func tryFirstMatching[T any](ctx context.Context, candidates []T, attempt func(context.Context, T) (bool, error)) (T, bool, error) {
	var zero T
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		ok, err := attempt(ctx, c)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return c, true, nil
		}
	}
	return zero, false, nil
}

// probe returns the elements in scope matching c, in document order.
func probe(ctx context.Context, page Page, scope Scope, c Candidate) ([]Element, error) {
	els, err := page.Elements(ctx, scope, c.Selector())
	if err != nil {
		return nil, err
	}
	if c.Text == "" {
		return els, nil
	}
	matched := els[:0]
	for _, el := range els {
		if c.matches(el) {
			matched = append(matched, el)
		}
	}
	return matched, nil
}
