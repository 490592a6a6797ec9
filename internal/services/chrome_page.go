package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/automation"
)

const (
	maxFetchBytes   = 64 << 20
	idleQuietPeriod = 500 * time.Millisecond
	idlePollEvery   = 100 * time.Millisecond
)

// pageOptions are shared by a session's tab and the popups it opens.
type pageOptions struct {
	downloadDir       string
	navigationTimeout time.Duration
	userAgent         string
	logger            logrus.FieldLogger
}

type pendingDownload struct {
	url       string
	suggested string
}

type pendingResponse struct {
	url      string
	mimeType string
}

// ChromePage implements automation.Page on top of one chromedp tab.
type ChromePage struct {
	ctx      context.Context
	targetID target.ID
	opts     pageOptions
	client   *http.Client

	mu        sync.Mutex
	crashed   bool
	inflight  map[network.RequestID]struct{}
	lastBusy  time.Time
	observing bool
	obs       *automation.Observations
	downloads chan automation.Download
	responses chan automation.Response
	popups    chan automation.Page
	pendingDl map[string]pendingDownload
	sniffing  map[network.RequestID]pendingResponse
}

// newChromePage attaches to the tab behind ctx, which must already be
// running, and enables the domains the capture channels rely on.
func newChromePage(ctx context.Context, opts pageOptions) (*ChromePage, error) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return nil, fmt.Errorf("%w: tab is not attached", automation.ErrSessionClosed)
	}

	p := &ChromePage{
		ctx:       ctx,
		targetID:  c.Target.TargetID,
		opts:      opts,
		client:    &http.Client{},
		inflight:  make(map[network.RequestID]struct{}),
		lastBusy:  time.Now(),
		downloads: make(chan automation.Download, 4),
		responses: make(chan automation.Response, 16),
		popups:    make(chan automation.Page, 4),
		pendingDl: make(map[string]pendingDownload),
		sniffing:  make(map[network.RequestID]pendingResponse),
	}

	chromedp.ListenTarget(ctx, p.onTargetEvent)
	chromedp.ListenBrowser(ctx, p.onBrowserEvent)

	setup := []chromedp.Action{network.Enable()}
	if opts.downloadDir != "" {
		setup = append(setup, browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(opts.downloadDir).
			WithEventsEnabled(true))
	}
	if err := chromedp.Run(ctx, setup...); err != nil {
		return nil, fmt.Errorf("failed to prepare tab: %w", err)
	}

	return p, nil
}

func (p *ChromePage) onTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Type == network.ResourceTypeWebSocket || e.Type == network.ResourceTypeEventSource {
			return
		}
		p.mu.Lock()
		p.inflight[e.RequestID] = struct{}{}
		p.lastBusy = time.Now()
		p.mu.Unlock()

	case *network.EventResponseReceived:
		if e.Response == nil || !strings.Contains(strings.ToLower(e.Response.MimeType), "pdf") {
			return
		}
		p.mu.Lock()
		if p.observing {
			p.sniffing[e.RequestID] = pendingResponse{url: e.Response.URL, mimeType: e.Response.MimeType}
		}
		p.mu.Unlock()

	case *network.EventLoadingFinished:
		p.mu.Lock()
		p.settle(e.RequestID)
		pending, ok := p.sniffing[e.RequestID]
		delete(p.sniffing, e.RequestID)
		p.mu.Unlock()
		if ok {
			go p.readResponseBody(e.RequestID, pending)
		}

	case *network.EventLoadingFailed:
		p.mu.Lock()
		p.settle(e.RequestID)
		delete(p.sniffing, e.RequestID)
		p.mu.Unlock()

	case *browser.EventDownloadWillBegin:
		p.mu.Lock()
		if p.observing {
			p.pendingDl[e.GUID] = pendingDownload{url: e.URL, suggested: e.SuggestedFilename}
		}
		p.mu.Unlock()

	case *browser.EventDownloadProgress:
		if e.State == browser.DownloadProgressStateInProgress {
			return
		}
		p.mu.Lock()
		pending, ok := p.pendingDl[e.GUID]
		delete(p.pendingDl, e.GUID)
		p.mu.Unlock()
		if ok && e.State == browser.DownloadProgressStateCompleted {
			p.emitDownload(automation.Download{
				URL:               pending.url,
				SuggestedFilename: pending.suggested,
				Path:              filepath.Join(p.opts.downloadDir, e.GUID),
			})
		}

	case *inspector.EventTargetCrashed, *inspector.EventDetached:
		p.mu.Lock()
		p.crashed = true
		p.mu.Unlock()
		p.opts.logger.WithField("target_id", p.targetID).Warn("Browser tab is gone")
	}
}

func (p *ChromePage) onBrowserEvent(ev interface{}) {
	e, ok := ev.(*target.EventTargetCreated)
	if !ok || e.TargetInfo == nil || e.TargetInfo.Type != "page" || e.TargetInfo.OpenerID != p.targetID {
		return
	}
	p.mu.Lock()
	observing := p.observing
	p.mu.Unlock()
	if observing {
		go p.attachPopup(e.TargetInfo.TargetID, e.TargetInfo.URL)
	}
}

// settle must be called with p.mu held.
func (p *ChromePage) settle(id network.RequestID) {
	if _, ok := p.inflight[id]; ok {
		delete(p.inflight, id)
		p.lastBusy = time.Now()
	}
}

func (p *ChromePage) readResponseBody(id network.RequestID, pending pendingResponse) {
	var body []byte
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		p.opts.logger.WithError(err).WithField("url", pending.url).Debug("Could not read PDF response body")
		return
	}
	select {
	case p.responses <- automation.Response{URL: pending.url, ContentType: pending.mimeType, Body: body}:
	default:
		p.opts.logger.WithField("url", pending.url).Debug("Response queue full, dropping observation")
	}
}

func (p *ChromePage) emitDownload(d automation.Download) {
	select {
	case p.downloads <- d:
	default:
		p.opts.logger.WithField("url", d.URL).Debug("Download queue full, dropping observation")
	}
}

func (p *ChromePage) attachPopup(id target.ID, rawURL string) {
	// The popup context derives from the session tab and dies with it.
	popupCtx, cancel := chromedp.NewContext(p.ctx, chromedp.WithTargetID(id))
	if err := chromedp.Run(popupCtx); err != nil {
		cancel()
		p.opts.logger.WithError(err).Debug("Could not attach to popup")
		return
	}
	popup, err := newChromePage(popupCtx, pageOptions{
		navigationTimeout: p.opts.navigationTimeout,
		userAgent:         p.opts.userAgent,
		logger:            p.opts.logger.WithField("popup", rawURL),
	})
	if err != nil {
		cancel()
		p.opts.logger.WithError(err).Debug("Could not prepare popup")
		return
	}
	select {
	case p.popups <- popup:
		p.opts.logger.WithField("url", rawURL).Info("Popup attached")
	default:
	}
}

func (p *ChromePage) dead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crashed || p.ctx.Err() != nil
}

// run executes actions on the tab bounded by ctx. Failures caused by a dead
// tab are reported as automation.ErrSessionClosed.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.dead() {
		return fmt.Errorf("%w: browser tab is gone", automation.ErrSessionClosed)
	}

	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case p.dead():
		return fmt.Errorf("%w: %v", automation.ErrSessionClosed, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}

func (p *ChromePage) eval(ctx context.Context, fn string, res interface{}, args ...interface{}) error {
	expr, err := callJS(fn, args...)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Evaluate(expr, res))
}

// mutate runs a script returning "" on success or a failure reason.
func (p *ChromePage) mutate(ctx context.Context, fn string, el automation.Element, args ...interface{}) error {
	var reason string
	if err := p.eval(ctx, fn, &reason, append([]interface{}{el.Frame, el.Ref}, args...)...); err != nil {
		return err
	}
	if reason != "" {
		return fmt.Errorf("element %s is %s", el.Ref, reason)
	}
	return nil
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if p.opts.navigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.navigationTimeout)
		defer cancel()
	}
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *ChromePage) Location(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *ChromePage) HTML(ctx context.Context, frame string) (string, error) {
	var html string
	err := p.eval(ctx, htmlJS, &html, frame)
	return html, err
}

func (p *ChromePage) Frames(ctx context.Context) ([]string, error) {
	var frames []string
	err := p.eval(ctx, framesJS, &frames, frameAttr)
	return frames, err
}

type elementSnapshot struct {
	Ref   string            `json:"ref"`
	Tag   string            `json:"tag"`
	Text  string            `json:"text"`
	Href  string            `json:"href"`
	Attrs map[string]string `json:"attrs"`
}

func (p *ChromePage) Elements(ctx context.Context, scope automation.Scope, selector string) ([]automation.Element, error) {
	var snapshots []elementSnapshot
	if err := p.eval(ctx, elementsJS, &snapshots, scope.Frame, scope.Container, selector, refAttr); err != nil {
		return nil, err
	}
	elements := make([]automation.Element, 0, len(snapshots))
	for _, s := range snapshots {
		elements = append(elements, automation.Element{
			Frame: scope.Frame,
			Ref:   s.Ref,
			Tag:   s.Tag,
			Text:  s.Text,
			Href:  s.Href,
			Attrs: s.Attrs,
		})
	}
	return elements, nil
}

func (p *ChromePage) Fill(ctx context.Context, el automation.Element, value string) error {
	return p.mutate(ctx, fillJS, el, value)
}

func (p *ChromePage) Options(ctx context.Context, el automation.Element) ([]automation.Option, error) {
	var raw []struct {
		Value string `json:"value"`
		Text  string `json:"text"`
	}
	if err := p.eval(ctx, optionsJS, &raw, el.Frame, el.Ref); err != nil {
		return nil, err
	}
	options := make([]automation.Option, len(raw))
	for i, o := range raw {
		options[i] = automation.Option{Value: o.Value, Text: o.Text}
	}
	return options, nil
}

func (p *ChromePage) Select(ctx context.Context, el automation.Element, value string) error {
	return p.mutate(ctx, selectJS, el, value)
}

func (p *ChromePage) Click(ctx context.Context, el automation.Element) error {
	return p.mutate(ctx, clickJS, el)
}

func (p *ChromePage) Nudge(ctx context.Context, scope automation.Scope) error {
	var ok bool
	return p.eval(ctx, nudgeJS, &ok, scope.Frame, scope.Container)
}

// WaitIdle returns once no request has been in flight for idleQuietPeriod.
func (p *ChromePage) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollEvery)
	defer ticker.Stop()
	for {
		if p.dead() {
			return fmt.Errorf("%w: browser tab is gone", automation.ErrSessionClosed)
		}
		p.mu.Lock()
		quiet := len(p.inflight) == 0 && time.Since(p.lastBusy) >= idleQuietPeriod
		p.mu.Unlock()
		if quiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Fetch issues a GET for url carrying the tab's cookies for that URL.
func (p *ChromePage) Fetch(ctx context.Context, url string) (*automation.FetchResult, error) {
	var cookies []*network.Cookie
	var referer string
	err := p.run(ctx,
		chromedp.Location(&referer),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithUrls([]string{url}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid fetch url: %w", err)
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	if p.opts.userAgent != "" {
		req.Header.Set("User-Agent", p.opts.userAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, maxFetchBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return &automation.FetchResult{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// readLimited reads r to the end and fails when it holds more than limit
// bytes, so an oversized body is never mistaken for a whole document.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}

// Observe starts queueing downloads, PDF responses and popups. Calling it
// again returns the same queues.
func (p *ChromePage) Observe(ctx context.Context) (*automation.Observations, error) {
	if p.dead() {
		return nil, fmt.Errorf("%w: browser tab is gone", automation.ErrSessionClosed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.obs == nil {
		p.observing = true
		p.obs = &automation.Observations{
			Downloads: p.downloads,
			Responses: p.responses,
			Popups:    p.popups,
		}
	}
	return p.obs, nil
}

func (p *ChromePage) NeutralizePopups(ctx context.Context) error {
	var ok bool
	return p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(neutralizePopupsJS).Do(ctx)
			return err
		}),
		chromedp.Evaluate(neutralizePopupsJS, &ok),
	)
}

func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("empty screenshot")
	}
	return buf, nil
}
