package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/utils"
)

// CaptureConfig bounds every wait of the capture stage.
type CaptureConfig struct {
	// Budget caps the whole stage.
	Budget time.Duration
	// TriggerWindow and TriggerInterval bound the search for a control to click.
	TriggerWindow   time.Duration
	TriggerInterval time.Duration
	// ScopedWindow is the leading part of TriggerWindow during which only
	// controls inside the scope are considered.
	ScopedWindow time.Duration
	// HrefWindow and HrefInterval bound the .pdf link polling.
	HrefWindow   time.Duration
	HrefInterval time.Duration
	// DownloadWait counts from the start of the stage.
	DownloadWait time.Duration
	// PopupBudget bounds polling of a popup opened by the trigger.
	PopupBudget time.Duration
	// Grace is the last wait for a late PDF response once href and
	// download came back empty.
	Grace time.Duration
}

// DefaultCaptureConfig returns the production timings.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Budget:          180 * time.Second,
		TriggerWindow:   45 * time.Second,
		TriggerInterval: time.Second,
		ScopedWindow:    30 * time.Second,
		HrefWindow:      45 * time.Second,
		HrefInterval:    time.Second,
		DownloadWait:    120 * time.Second,
		PopupBudget:     15 * time.Second,
		Grace:           3 * time.Second,
	}
}

// resolutionWindow is how long lower priority channels wait for a higher
// priority one that is about to deliver.
const resolutionWindow = 200 * time.Millisecond

type triggerTier int

const (
	tierNone triggerTier = iota
	tierScopedControl
	tierPageControl
	tierScopedAnchor
)

func (t triggerTier) String() string {
	switch t {
	case tierScopedControl:
		return "scoped_control"
	case tierPageControl:
		return "page_control"
	case tierScopedAnchor:
		return "scoped_pdf_anchor"
	default:
		return "none"
	}
}

// channelResult is what each capture channel hands to the resolution point.
type channelResult struct {
	channel Channel
	doc     *Document
	err     error
}

// CaptureCoordinator triggers the download and races the three capture
// channels.
type CaptureCoordinator struct {
	page    Page
	catalog *Catalog
	cfg     CaptureConfig
	logger  logrus.FieldLogger
}

// NewCaptureCoordinator creates a coordinator bound to page.
func NewCaptureCoordinator(page Page, catalog *Catalog, cfg CaptureConfig, logger logrus.FieldLogger) *CaptureCoordinator {
	return &CaptureCoordinator{page: page, catalog: catalog, cfg: cfg, logger: logger}
}

// Capture clicks a download control related to scope, then resolves the
// document from whichever channel delivers. When several channels have
// bytes at resolution time the order is href, download, sniffed response.
func (c *CaptureCoordinator) Capture(ctx context.Context, obs *Observations, scope Scope, customerNumber string) (Outcome, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Budget)
	defer cancel()

	downloadDeadline := time.Now().Add(c.cfg.DownloadWait)
	fallback := DefaultFilename(customerNumber)

	tier, err := c.trigger(ctx, scope)
	if err != nil {
		if parent.Err() != nil || errors.Is(err, ErrSessionClosed) {
			return nil, err
		}
		c.logger.WithError(err).Warn("Capture budget spent while searching for a download control")
		return NotFound{Reason: ReasonNoControl}, nil
	}
	c.logger.WithField("trigger", tier.String()).Info("Download trigger search finished")

	hrefCtx, cancelHref := context.WithCancel(ctx)
	downloadCtx, cancelDownload := context.WithDeadline(ctx, downloadDeadline)
	sniffCtx, cancelSniff := context.WithCancel(ctx)
	cancelAll := func() {
		cancelHref()
		cancelDownload()
		cancelSniff()
	}
	defer cancelAll()

	results := make(chan channelResult, 3)
	go func() { results <- c.hrefChannel(hrefCtx, scope, obs.Popups, fallback) }()
	go func() { results <- c.downloadChannel(downloadCtx, obs.Downloads, fallback) }()
	go func() { results <- c.sniffChannel(sniffCtx, obs.Responses, fallback) }()

	got := make(map[Channel]Document, 3)
	pending := 3
	hrefDone, downloadDone := false, false
	graceStarted := false
	var grace <-chan time.Time
	var channelErr error

	collect := func(r channelResult) {
		pending--
		switch r.channel {
		case ChannelHref:
			hrefDone = true
		case ChannelDownload:
			downloadDone = true
		}
		if r.doc != nil {
			got[r.channel] = *r.doc
		}
		if r.err != nil && channelErr == nil && fatal(parent, r.err) {
			channelErr = r.err
			cancelAll()
		}
	}

	for pending > 0 && len(got) == 0 {
		select {
		case r := <-results:
			collect(r)
			if !graceStarted && hrefDone && downloadDone && pending == 1 {
				graceStarted = true
				timer := time.NewTimer(c.cfg.Grace)
				defer timer.Stop()
				grace = timer.C
			}
		case <-grace:
			grace = nil
			cancelSniff()
		}
	}

	// Channels that deliver within resolutionWindow of the first one still
	// compete on priority, unless the first one already outranks them all.
	if _, top := got[channelPriority[0]]; len(got) > 0 && !top && pending > 0 {
		settle := time.NewTimer(resolutionWindow)
		defer settle.Stop()
	settling:
		for pending > 0 {
			select {
			case r := <-results:
				collect(r)
			case <-settle.C:
				break settling
			}
		}
	}
	cancelAll()

	if outcome, ch, ok := resolve(got); ok {
		doc, _ := DocumentOf(outcome)
		c.logger.WithFields(logrus.Fields{
			"channel":  ch,
			"filename": doc.Filename,
			"bytes":    len(doc.Bytes),
		}).Info("Document captured")
		return outcome, nil
	}

	if err := parent.Err(); err != nil {
		return nil, err
	}
	if channelErr != nil {
		return nil, channelErr
	}

	reason := ReasonNoControl
	if tier != tierNone {
		reason = ReasonNoBytes
	}
	c.logger.WithField("reason", reason).Warn("No capture channel produced a document")
	return NotFound{Reason: reason}, nil
}

// resolve picks the highest priority channel that produced a document.
func resolve(got map[Channel]Document) (Outcome, Channel, bool) {
	for _, ch := range channelPriority {
		if doc, ok := got[ch]; ok {
			return outcomeFor(ch, doc), ch, true
		}
	}
	return nil, "", false
}

// trigger searches for a download control. Only marker controls inside
// scope are tried until ScopedWindow elapses; after that each tick widens to
// marker controls in the scope's document, then in the top-level page when
// the scope sits in a nested frame, and last to a .pdf anchor inside scope.
// The first hit is force-clicked.
func (c *CaptureCoordinator) trigger(ctx context.Context, scope Scope) (triggerTier, error) {
	searchCtx, cancel := context.WithTimeout(ctx, c.cfg.TriggerWindow)
	defer cancel()

	interval := c.cfg.TriggerInterval
	if interval <= 0 {
		interval = time.Second
	}
	scopedWindow := c.cfg.ScopedWindow
	if scopedWindow <= 0 {
		scopedWindow = c.cfg.TriggerWindow * 2 / 3
	}
	widenAt := time.Now().Add(scopedWindow)

	type attempt struct {
		tier triggerTier
		find func(context.Context) (Element, bool, error)
	}
	scoped := []attempt{
		{tierScopedControl, func(ctx context.Context) (Element, bool, error) { return c.findMarkedControl(ctx, scope) }},
	}
	widened := append([]attempt(nil), scoped...)
	if !scope.Whole() {
		widened = append(widened, attempt{tierPageControl, func(ctx context.Context) (Element, bool, error) {
			return c.findMarkedControl(ctx, scope.Document())
		}})
	}
	if scope.Frame != "" {
		widened = append(widened, attempt{tierPageControl, func(ctx context.Context) (Element, bool, error) {
			return c.findMarkedControl(ctx, Scope{})
		}})
	}
	widened = append(widened, attempt{tierScopedAnchor, func(ctx context.Context) (Element, bool, error) {
		return c.findPDFAnchor(ctx, c.page, scope)
	}})

	widenLogged := false
	for {
		attempts := scoped
		if !time.Now().Before(widenAt) {
			attempts = widened
			if !widenLogged {
				widenLogged = true
				c.logger.Debug("No download control inside the scope yet, widening the search")
			}
		}

		for _, a := range attempts {
			el, ok, err := a.find(searchCtx)
			if err != nil {
				if fatal(ctx, err) {
					return tierNone, err
				}
				break
			}
			if !ok {
				continue
			}
			if err := c.page.Click(searchCtx, el); err != nil {
				if fatal(ctx, err) {
					return tierNone, err
				}
				c.logger.WithError(err).WithField("tier", a.tier.String()).Debug("Download control click failed")
				continue
			}
			c.logger.WithFields(logrus.Fields{
				"tier":  a.tier.String(),
				"label": el.Label(),
			}).Info("Download control clicked")
			return a.tier, nil
		}

		if err := c.page.Nudge(searchCtx, scope); err != nil && fatal(ctx, err) {
			return tierNone, err
		}
		select {
		case <-searchCtx.Done():
			if err := ctx.Err(); err != nil {
				return tierNone, err
			}
			return tierNone, nil
		case <-time.After(interval):
		}
	}
}

// findMarkedControl returns the first download control whose label holds a
// marker, trying markers in catalog order.
func (c *CaptureCoordinator) findMarkedControl(ctx context.Context, scope Scope) (Element, bool, error) {
	els, err := c.page.Elements(ctx, scope, c.catalog.DownloadControls)
	if err != nil || len(els) == 0 {
		return Element{}, false, err
	}
	labels := make([]string, len(els))
	for i, el := range els {
		labels[i] = utils.NormalizeText(el.Label())
	}
	for _, marker := range c.catalog.DownloadMarkers {
		m := utils.NormalizeText(marker)
		for i, el := range els {
			if strings.Contains(labels[i], m) {
				return el, true, nil
			}
		}
	}
	return Element{}, false, nil
}

// findPDFAnchor returns the first anchor in scope whose href points to a PDF.
func (c *CaptureCoordinator) findPDFAnchor(ctx context.Context, page Page, scope Scope) (Element, bool, error) {
	anchors, err := c.pdfAnchors(ctx, page, scope)
	if err != nil || len(anchors) == 0 {
		return Element{}, false, err
	}
	return anchors[0], true, nil
}

// pdfAnchors lists .pdf anchors in scope, suffix matches before contains
// matches, without duplicates.
func (c *CaptureCoordinator) pdfAnchors(ctx context.Context, page Page, scope Scope) ([]Element, error) {
	var anchors []Element
	seen := make(map[string]bool)
	for _, cand := range c.catalog.PDFAnchors {
		els, err := probe(ctx, page, scope, cand)
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			href := el.Href
			if href == "" {
				href = el.Attr("href")
			}
			if href == "" || seen[href] {
				continue
			}
			seen[href] = true
			el.Href = href
			anchors = append(anchors, el)
		}
	}
	return anchors, nil
}

// hrefChannel polls scope, and any popup the trigger opened, for a .pdf link
// and fetches it with the session's cookies.
func (c *CaptureCoordinator) hrefChannel(ctx context.Context, scope Scope, popups <-chan Page, fallback string) channelResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HrefWindow)
	defer cancel()

	interval := c.cfg.HrefInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tried := make(map[string]bool)
	var popup Page
	var popupDeadline time.Time

	for {
		if popup == nil && popups != nil {
			select {
			case p, ok := <-popups:
				if ok && p != nil {
					popup = p
					popupDeadline = time.Now().Add(c.cfg.PopupBudget)
					c.logger.Info("Popup opened by trigger, polling it for PDF links")
				}
			default:
			}
		}

		if popup != nil && !time.Now().Before(popupDeadline) {
			c.logger.Debug("Popup budget spent, polling the page only")
			popup = nil
		}
		if popup != nil {
			popupCtx, cancelPopup := context.WithDeadline(ctx, popupDeadline)
			doc, err := c.fetchFromPopup(popupCtx, popup, tried, fallback)
			cancelPopup()
			if doc != nil {
				return channelResult{channel: ChannelHref, doc: doc}
			}
			// A popup that closed or crashed is exhausted; the page it came
			// from still decides whether the session is alive.
			if err != nil && ctx.Err() == nil {
				c.logger.WithError(err).Debug("Popup unusable, polling the page only")
				popup = nil
			}
		}

		doc, err := c.fetchFromScope(ctx, c.page, scope, tried, fallback)
		if doc != nil {
			return channelResult{channel: ChannelHref, doc: doc}
		}
		if err != nil && fatal(ctx, err) {
			return channelResult{channel: ChannelHref, err: err}
		}
		if err := c.page.Nudge(ctx, scope); err != nil && fatal(ctx, err) {
			return channelResult{channel: ChannelHref, err: err}
		}

		select {
		case <-ctx.Done():
			return channelResult{channel: ChannelHref}
		case <-ticker.C:
		}
	}
}

func (c *CaptureCoordinator) fetchFromScope(ctx context.Context, page Page, scope Scope, tried map[string]bool, fallback string) (*Document, error) {
	anchors, err := c.pdfAnchors(ctx, page, scope)
	if err != nil {
		return nil, err
	}
	for _, a := range anchors {
		doc, err := c.fetchPDF(ctx, page, a.Href, tried, fallback)
		if doc != nil || err != nil {
			return doc, err
		}
	}
	return nil, nil
}

// fetchFromPopup checks whether the popup itself navigated to a PDF before
// looking at its anchors.
func (c *CaptureCoordinator) fetchFromPopup(ctx context.Context, popup Page, tried map[string]bool, fallback string) (*Document, error) {
	loc, err := popup.Location(ctx)
	if err != nil {
		return nil, err
	}
	if hasPDFSuffix(loc) {
		if doc, err := c.fetchPDF(ctx, popup, loc, tried, fallback); doc != nil || err != nil {
			return doc, err
		}
	}
	return c.fetchFromScope(ctx, popup, Scope{}, tried, fallback)
}

// fetchPDF fetches href once per capture. The response is accepted when it
// is typed as PDF or the URL itself ends in .pdf.
func (c *CaptureCoordinator) fetchPDF(ctx context.Context, page Page, href string, tried map[string]bool, fallback string) (*Document, error) {
	if href == "" || tried[href] {
		return nil, nil
	}
	tried[href] = true

	res, err := page.Fetch(ctx, href)
	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		c.logger.WithError(err).WithField("url", href).Debug("PDF link fetch failed")
		return nil, nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 || len(res.Body) == 0 {
		c.logger.WithFields(logrus.Fields{"url": href, "status": res.StatusCode}).Debug("PDF link returned no content")
		return nil, nil
	}
	if !isPDFContentType(res.ContentType) && !hasPDFSuffix(href) {
		c.logger.WithFields(logrus.Fields{"url": href, "content_type": res.ContentType}).Debug("PDF link is not a PDF")
		return nil, nil
	}

	name := fallback
	if hasPDFSuffix(href) {
		if tail := FilenameFromURL(href); tail != "" {
			name = tail
		}
	}
	return &Document{Bytes: res.Body, Filename: name}, nil
}

// downloadChannel waits for the browser to finish a native download.
func (c *CaptureCoordinator) downloadChannel(ctx context.Context, downloads <-chan Download, fallback string) channelResult {
	for {
		select {
		case <-ctx.Done():
			return channelResult{channel: ChannelDownload}
		case d, ok := <-downloads:
			if !ok {
				return channelResult{channel: ChannelDownload}
			}
			body, err := readDownload(d)
			if err != nil {
				c.logger.WithError(err).WithField("url", d.URL).Warn("Failed to read downloaded file")
				continue
			}
			if len(body) == 0 {
				continue
			}
			name := utils.SanitizeFilename(d.SuggestedFilename)
			if name == "" {
				name = fallback
			}
			return channelResult{channel: ChannelDownload, doc: &Document{Bytes: body, Filename: name}}
		}
	}
}

func readDownload(d Download) ([]byte, error) {
	if d.Body != nil {
		defer d.Body.Close()
		return io.ReadAll(d.Body)
	}
	if d.Path != "" {
		return os.ReadFile(d.Path)
	}
	return nil, fmt.Errorf("download %q has neither stream nor path", d.URL)
}

// sniffChannel drains the response queue until a PDF typed response shows up.
func (c *CaptureCoordinator) sniffChannel(ctx context.Context, responses <-chan Response, fallback string) channelResult {
	for {
		select {
		case <-ctx.Done():
			return channelResult{channel: ChannelSniff}
		case r, ok := <-responses:
			if !ok {
				// Queue closed; nothing more can arrive but the grace wait
				// still decides when this channel counts as finished.
				responses = nil
				continue
			}
			if !isPDFContentType(r.ContentType) || len(r.Body) == 0 {
				continue
			}
			name := ""
			if hasPDFSuffix(r.URL) {
				name = FilenameFromURL(r.URL)
			}
			if name == "" {
				name = fallback
			}
			return channelResult{channel: ChannelSniff, doc: &Document{Bytes: r.Body, Filename: name}}
		}
	}
}

// DefaultFilename is used when no channel supplies a usable name.
func DefaultFilename(customerNumber string) string {
	if n := utils.SanitizeFilename(customerNumber); n != "" {
		return "recibo_" + n + ".pdf"
	}
	return "recibo.pdf"
}

// FilenameFromURL returns the final path segment of raw, or "".
func FilenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segment := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	return utils.SanitizeFilename(segment)
}

func hasPDFSuffix(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func isPDFContentType(ct string) bool {
	if ct == "" {
		return false
	}
	media, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(strings.ToLower(ct), "application/pdf")
	}
	return media == "application/pdf"
}
