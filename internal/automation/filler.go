package automation

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/utils"
)

// Request carries the identifiers of one retrieval.
type Request struct {
	CustomerNumber string
	DocumentType   string
	DocumentNumber string
	Year           string
	Month          string
}

// Values maps the request onto the logical form fields.
func (r Request) Values() map[Field]string {
	return map[Field]string{
		FieldCustomerNumber: r.CustomerNumber,
		FieldDocumentType:   r.DocumentType,
		FieldDocumentNumber: r.DocumentNumber,
		FieldYear:           r.Year,
		FieldMonth:          r.Month,
	}
}

// Validate checks the identifiers the portal cannot work without.
func (r Request) Validate() error {
	if strings.TrimSpace(r.CustomerNumber) == "" || strings.TrimSpace(r.DocumentNumber) == "" {
		return ErrValidation
	}
	return nil
}

// FormFiller populates logical fields through the catalog's candidates.
type FormFiller struct {
	page    Page
	catalog *Catalog
	logger  logrus.FieldLogger
}

// NewFormFiller creates a filler bound to page.
func NewFormFiller(page Page, catalog *Catalog, logger logrus.FieldLogger) *FormFiller {
	return &FormFiller{page: page, catalog: catalog, logger: logger}
}

// FillField writes value into the first candidate for field that exists and
// accepts it. A false result is not an error; the returned error is reserved
// for a dead session or an expired context.
func (f *FormFiller) FillField(ctx context.Context, field Field, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	spec, ok := f.catalog.Field(field)
	if !ok {
		return false, nil
	}
	if field == FieldMonth {
		value = utils.PadMonth(value)
	}

	used, ok, err := tryFirstMatching(ctx, spec.Candidates, func(ctx context.Context, c Candidate) (bool, error) {
		els, err := probe(ctx, f.page, Scope{}, c)
		if err != nil || len(els) == 0 {
			return false, err
		}
		el := els[0]

		if spec.Kind == KindSelect {
			return f.selectOption(ctx, el, value)
		}
		if err := f.page.Fill(ctx, el, value); err != nil {
			if fatal(ctx, err) {
				return false, err
			}
			f.logger.WithFields(logrus.Fields{
				"field":     field,
				"candidate": c.String(),
				"error":     err.Error(),
			}).Debug("Candidate not fillable, trying next")
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}

	entry := f.logger.WithField("field", field)
	if ok {
		entry.WithField("candidate", used.String()).Debug("Field filled")
	} else {
		entry.Debug("No candidate matched field")
	}
	return ok, nil
}

func (f *FormFiller) selectOption(ctx context.Context, el Element, wanted string) (bool, error) {
	opts, err := f.page.Options(ctx, el)
	if err != nil {
		if fatal(ctx, err) {
			return false, err
		}
		return false, nil
	}
	opt, ok := MatchOption(opts, wanted)
	if !ok {
		return false, nil
	}
	if err := f.page.Select(ctx, el, opt.Value); err != nil {
		if fatal(ctx, err) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Fill populates every field of req in catalog order and reports which
// fields were set.
func (f *FormFiller) Fill(ctx context.Context, req Request) (map[Field]bool, error) {
	values := req.Values()
	filled := make(map[Field]bool, len(f.catalog.Fields))
	for _, spec := range f.catalog.Fields {
		ok, err := f.FillField(ctx, spec.Field, values[spec.Field])
		if err != nil {
			return filled, err
		}
		filled[spec.Field] = ok
	}
	return filled, nil
}

// MatchOption picks the option whose value equals wanted, ignoring case, or
// failing that the first whose display text contains it. An exact value
// match always wins over a text match.
func MatchOption(opts []Option, wanted string) (Option, bool) {
	wanted = strings.TrimSpace(wanted)
	if wanted == "" {
		return Option{}, false
	}
	for _, o := range opts {
		if strings.EqualFold(strings.TrimSpace(o.Value), wanted) {
			return o, true
		}
	}
	upper := strings.ToUpper(wanted)
	for _, o := range opts {
		if strings.Contains(strings.ToUpper(o.Text), upper) {
			return o, true
		}
	}
	return Option{}, false
}
