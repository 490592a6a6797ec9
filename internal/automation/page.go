package automation

import (
	"context"
	"io"
	"strings"
)

// Scope narrows element lookups to one document and, optionally, one
// container inside it.
type Scope struct {
	// Frame is the selector of the iframe hosting the document. Empty means
	// the top-level document.
	Frame string `json:"frame,omitempty"`
	// Container is a selector resolving to the container element. Empty
	// means the whole document.
	Container string `json:"container,omitempty"`
}

// Whole reports whether the scope covers the entire document.
func (s Scope) Whole() bool {
	return s.Container == ""
}

// Document returns the scope widened to its whole document.
func (s Scope) Document() Scope {
	return Scope{Frame: s.Frame}
}

// Element is a snapshot of a live element, addressable again through Ref.
type Element struct {
	Frame string
	Ref   string
	Tag   string
	Text  string
	Href  string
	Attrs map[string]string
}

// Attr returns the named attribute or "".
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Label is the text a user would read on the element. Inputs and icon
// buttons carry it in attributes rather than in their content.
func (e Element) Label() string {
	if t := strings.TrimSpace(e.Text); t != "" {
		return t
	}
	for _, name := range []string{"value", "aria-label", "title", "alt"} {
		if v := strings.TrimSpace(e.Attr(name)); v != "" {
			return v
		}
	}
	return ""
}

// Option is one entry of a select element.
type Option struct {
	Value string
	Text  string
}

// FetchResult is the response of an authenticated fetch issued with the
// browsing session's cookies.
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Download is a file the browser saved natively. Body is preferred when
// present; otherwise the bytes are read back from Path.
type Download struct {
	URL               string
	SuggestedFilename string
	Body              io.ReadCloser
	Path              string
}

// Response is a network response whose body has already been buffered.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// Observations are bounded single-consumer queues fed by the page's event
// listeners. They are installed before any interaction and drained by the
// capture channels.
type Observations struct {
	Downloads <-chan Download
	Responses <-chan Response
	Popups    <-chan Page
}

// Page is the browser capability the retrieval flow drives. Implementations
// return an error wrapping ErrSessionClosed when the underlying session is
// gone; element level failures (detached nodes, bad selectors) surface as an
// empty result instead.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	// HTML returns the serialized markup of the document in frame.
	HTML(ctx context.Context, frame string) (string, error)
	// Frames lists selectors of the nested documents the page can reach.
	Frames(ctx context.Context) ([]string, error)
	// Elements returns matches of selector within scope, in document order.
	Elements(ctx context.Context, scope Scope, selector string) ([]Element, error)
	Fill(ctx context.Context, el Element, value string) error
	Options(ctx context.Context, el Element) ([]Option, error)
	Select(ctx context.Context, el Element, value string) error
	// Click activates el without visibility or occlusion checks.
	Click(ctx context.Context, el Element) error
	// Nudge scrolls the scope so lazily rendered content gets attached.
	Nudge(ctx context.Context, scope Scope) error
	// WaitIdle blocks until the page has no network activity in flight.
	WaitIdle(ctx context.Context) error
	Fetch(ctx context.Context, url string) (*FetchResult, error)
	Observe(ctx context.Context) (*Observations, error)
	// NeutralizePopups turns window.open into same-tab navigation.
	NeutralizePopups(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
}
