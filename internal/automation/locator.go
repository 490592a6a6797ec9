package automation

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ResultLocator finds the result container that belongs to the requested
// customer.
type ResultLocator struct {
	page     Page
	catalog  *Catalog
	timeout  time.Duration
	interval time.Duration
	logger   logrus.FieldLogger
}

// NewResultLocator creates a locator polling every interval for up to timeout.
func NewResultLocator(page Page, catalog *Catalog, timeout, interval time.Duration, logger logrus.FieldLogger) *ResultLocator {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ResultLocator{page: page, catalog: catalog, timeout: timeout, interval: interval, logger: logger}
}

// Locate polls until a container's text holds customerNumber and returns it
// as the scope for the capture stage. The top-level document is searched
// before nested ones. There is no whole-page fallback: when nothing matches
// in time a NotFoundError with ReasonNoResult is returned.
func (l *ResultLocator) Locate(ctx context.Context, customerNumber string) (Scope, error) {
	needle := strings.ToLower(strings.TrimSpace(customerNumber))
	if needle == "" {
		return Scope{}, &NotFoundError{Reason: ReasonNoResult}
	}

	pollCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		scope, found, err := l.scan(pollCtx, needle)
		if err != nil && fatal(ctx, err) {
			return Scope{}, err
		}
		if found {
			l.logger.WithFields(logrus.Fields{
				"frame":     scope.Frame,
				"container": scope.Container,
				"attempts":  attempt,
			}).Info("Result container located")
			return scope, nil
		}

		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return Scope{}, err
			}
			l.logger.WithField("attempts", attempt).Warn("No result container matched customer number")
			return Scope{}, &NotFoundError{Reason: ReasonNoResult}
		case <-ticker.C:
		}
	}
}

func (l *ResultLocator) scan(ctx context.Context, needle string) (Scope, bool, error) {
	frames, err := l.page.Frames(ctx)
	if err != nil {
		return Scope{}, false, err
	}
	for _, frame := range append([]string{""}, frames...) {
		// Catalog order first so a row beats the table or page wrapper holding it.
		for _, selector := range l.catalog.ResultContainers {
			els, err := l.page.Elements(ctx, Scope{Frame: frame}, selector)
			if err != nil {
				return Scope{}, false, err
			}
			for _, el := range els {
				if strings.Contains(strings.ToLower(el.Text), needle) {
					return Scope{Frame: frame, Container: el.Ref}, true, nil
				}
			}
		}
	}
	return Scope{}, false, nil
}
