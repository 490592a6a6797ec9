// Package pagetest provides an in-memory automation.Page backed by goquery
// documents, for exercising the retrieval flow against fixture markup.
package pagetest

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pdf/fpdf"

	"github.com/nexconsult/recibo-api/internal/automation"
)

const refAttr = "data-recibo-ref"

var nonEditableInputs = map[string]bool{
	"hidden": true, "submit": true, "button": true, "checkbox": true,
	"radio": true, "file": true, "image": true, "reset": true,
}

// Page is a fixture page. The zero value is not usable; call New.
type Page struct {
	mu sync.Mutex

	url        string
	docs       map[string]*goquery.Document
	frameOrder []string
	seq        int
	closed     bool

	fetches     map[string]automation.FetchResult
	clicks      []automation.Element
	fetched     []string
	navigations []string
	nudges      int
	observed    bool
	neutralized bool

	downloads chan automation.Download
	responses chan automation.Response
	popups    chan automation.Page

	// OnClick runs after every successful click, outside the page lock, so
	// it may rewrite markup or emit observations.
	OnClick func(p *Page, el automation.Element)
	// NavigateErr, when set, is returned by Navigate.
	NavigateErr error
	// IdleErr, when set, is returned by WaitIdle.
	IdleErr error
}

// New returns a page showing html at rawURL.
func New(rawURL, html string) *Page {
	p := &Page{
		url:       rawURL,
		docs:      make(map[string]*goquery.Document),
		fetches:   make(map[string]automation.FetchResult),
		downloads: make(chan automation.Download, 8),
		responses: make(chan automation.Response, 8),
		popups:    make(chan automation.Page, 2),
	}
	p.SetHTML(html)
	return p
}

func mustParse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("pagetest: invalid fixture markup: %v", err))
	}
	return doc
}

// SetHTML replaces the top-level document.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[""] = mustParse(html)
}

// SetFrame installs or replaces the nested document hosted by selector.
func (p *Page) SetFrame(selector, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.docs[selector]; !ok {
		p.frameOrder = append(p.frameOrder, selector)
	}
	p.docs[selector] = mustParse(html)
}

// Append inserts html at the end of the first top-level element matching
// selector, leaving the rest of the document and its element refs intact.
func (p *Page) Append(selector, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[""].Find(selector).First().AppendHtml(html)
}

// Serve registers the response Fetch returns for rawURL.
func (p *Page) Serve(rawURL string, res automation.FetchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if res.URL == "" {
		res.URL = rawURL
	}
	p.fetches[rawURL] = res
}

// EmitDownload queues a finished native download.
func (p *Page) EmitDownload(d automation.Download) { p.downloads <- d }

// EmitResponse queues a sniffed response.
func (p *Page) EmitResponse(r automation.Response) { p.responses <- r }

// EmitPopup queues a popup page.
func (p *Page) EmitPopup(popup automation.Page) { p.popups <- popup }

// Close makes every later call fail with automation.ErrSessionClosed.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Value returns the value of the first element matching selector in the
// top-level document. For selects it is the selected option's value.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.docs[""].Find(selector).First()
	if goquery.NodeName(s) == "select" {
		return s.Find("option[selected]").First().AttrOr("value", "")
	}
	return s.AttrOr("value", "")
}

// Clicks returns the elements clicked so far.
func (p *Page) Clicks() []automation.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]automation.Element(nil), p.clicks...)
}

// Fetched returns the URLs fetched so far.
func (p *Page) Fetched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.fetched...)
}

// Navigations returns the URLs navigated to so far.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Nudges returns how many times the page was nudged.
func (p *Page) Nudges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nudges
}

// Observed reports whether Observe was called.
func (p *Page) Observed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.observed
}

// Neutralized reports whether NeutralizePopups was called.
func (p *Page) Neutralized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.neutralized
}

func (p *Page) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed {
		return automation.ErrSessionClosed
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.navigations = append(p.navigations, rawURL)
	p.url = rawURL
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", err
	}
	return p.url, nil
}

func (p *Page) HTML(ctx context.Context, frame string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", err
	}
	doc, ok := p.docs[frame]
	if !ok {
		return "", fmt.Errorf("no document for frame %q", frame)
	}
	return doc.Html()
}

func (p *Page) Frames(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), p.frameOrder...), nil
}

func (p *Page) Elements(ctx context.Context, scope automation.Scope, selector string) ([]automation.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	doc, ok := p.docs[scope.Frame]
	if !ok {
		return nil, nil
	}
	root := doc.Selection
	if scope.Container != "" {
		root = doc.Find(scope.Container).First()
		if root.Length() == 0 {
			return nil, nil
		}
	}

	var out []automation.Element
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, p.element(scope.Frame, s))
	})
	return out, nil
}

func (p *Page) element(frame string, s *goquery.Selection) automation.Element {
	id, ok := s.Attr(refAttr)
	if !ok {
		p.seq++
		id = strconv.Itoa(p.seq)
		s.SetAttr(refAttr, id)
	}

	attrs := make(map[string]string)
	for _, a := range s.Nodes[0].Attr {
		if a.Key != refAttr {
			attrs[a.Key] = a.Val
		}
	}

	el := automation.Element{
		Frame: frame,
		Ref:   fmt.Sprintf(`[%s="%s"]`, refAttr, id),
		Tag:   goquery.NodeName(s),
		Text:  strings.Join(strings.Fields(s.Text()), " "),
		Attrs: attrs,
	}
	if href, ok := attrs["href"]; ok {
		el.Href = p.resolve(href)
	}
	return el
}

func (p *Page) resolve(href string) string {
	base, err := url.Parse(p.url)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// lookup finds the live node behind el.
func (p *Page) lookup(el automation.Element) (*goquery.Selection, error) {
	doc, ok := p.docs[el.Frame]
	if !ok {
		return nil, fmt.Errorf("frame %q is gone", el.Frame)
	}
	s := doc.Find(el.Ref).First()
	if s.Length() == 0 {
		return nil, fmt.Errorf("element %s is detached", el.Ref)
	}
	return s, nil
}

func (p *Page) Fill(ctx context.Context, el automation.Element, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	s, err := p.lookup(el)
	if err != nil {
		return err
	}
	switch goquery.NodeName(s) {
	case "textarea":
	case "input":
		if nonEditableInputs[strings.ToLower(s.AttrOr("type", "text"))] {
			return fmt.Errorf("element %s is not fillable", el.Ref)
		}
	default:
		return fmt.Errorf("element %s is not fillable", el.Ref)
	}
	if _, disabled := s.Attr("disabled"); disabled {
		return fmt.Errorf("element %s is disabled", el.Ref)
	}
	if _, readonly := s.Attr("readonly"); readonly {
		return fmt.Errorf("element %s is read-only", el.Ref)
	}
	s.SetAttr("value", value)
	return nil
}

func (p *Page) Options(ctx context.Context, el automation.Element) ([]automation.Option, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	s, err := p.lookup(el)
	if err != nil {
		return nil, err
	}
	if goquery.NodeName(s) != "select" {
		return nil, fmt.Errorf("element %s is not a select", el.Ref)
	}
	var opts []automation.Option
	s.Find("option").Each(func(_ int, o *goquery.Selection) {
		text := strings.TrimSpace(o.Text())
		opts = append(opts, automation.Option{Value: o.AttrOr("value", text), Text: text})
	})
	return opts, nil
}

func (p *Page) Select(ctx context.Context, el automation.Element, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	s, err := p.lookup(el)
	if err != nil {
		return err
	}
	var match *goquery.Selection
	s.Find("option").EachWithBreak(func(_ int, o *goquery.Selection) bool {
		if o.AttrOr("value", strings.TrimSpace(o.Text())) == value {
			match = o
			return false
		}
		return true
	})
	if match == nil {
		return fmt.Errorf("select %s has no option %q", el.Ref, value)
	}
	s.Find("option").RemoveAttr("selected")
	match.SetAttr("selected", "selected")
	return nil
}

func (p *Page) Click(ctx context.Context, el automation.Element) error {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	if _, err := p.lookup(el); err != nil {
		p.mu.Unlock()
		return err
	}
	p.clicks = append(p.clicks, el)
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, el)
	}
	return nil
}

func (p *Page) Nudge(ctx context.Context, _ automation.Scope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	p.nudges++
	return nil
}

func (p *Page) WaitIdle(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	return p.IdleErr
}

func (p *Page) Fetch(ctx context.Context, rawURL string) (*automation.FetchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	p.fetched = append(p.fetched, rawURL)
	res, ok := p.fetches[rawURL]
	if !ok {
		return &automation.FetchResult{URL: rawURL, StatusCode: 404, ContentType: "text/html"}, nil
	}
	res.Body = append([]byte(nil), res.Body...)
	return &res, nil
}

func (p *Page) Observe(ctx context.Context) (*automation.Observations, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	p.observed = true
	return &automation.Observations{
		Downloads: p.downloads,
		Responses: p.responses,
		Popups:    p.popups,
	}, nil
}

func (p *Page) NeutralizePopups(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	p.neutralized = true
	return nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

// SamplePDF renders a one-page PDF holding text.
func SamplePDF(t testing.TB, text string) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, text)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("failed to render sample PDF: %v", err)
	}
	return buf.Bytes()
}
