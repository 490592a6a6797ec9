package automation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// QueryTrigger activates the portal's consult action.
type QueryTrigger struct {
	page        Page
	catalog     *Catalog
	idleTimeout time.Duration
	logger      logrus.FieldLogger
}

// NewQueryTrigger creates a trigger that waits up to idleTimeout for the
// page to settle after submitting.
func NewQueryTrigger(page Page, catalog *Catalog, idleTimeout time.Duration, logger logrus.FieldLogger) *QueryTrigger {
	return &QueryTrigger{page: page, catalog: catalog, idleTimeout: idleTimeout, logger: logger}
}

// Submit clicks the first query action found and waits for network
// quiescence. Neither a missing action nor a quiescence timeout is an error.
func (t *QueryTrigger) Submit(ctx context.Context) (bool, error) {
	used, clicked, err := tryFirstMatching(ctx, t.catalog.QueryActions, func(ctx context.Context, c Candidate) (bool, error) {
		els, err := probe(ctx, t.page, Scope{}, c)
		if err != nil || len(els) == 0 {
			return false, err
		}
		if err := t.page.Click(ctx, els[0]); err != nil {
			if fatal(ctx, err) {
				return false, err
			}
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if clicked {
		t.logger.WithField("action", used.String()).Info("Query submitted")
	} else {
		t.logger.Warn("No query action found on page")
	}

	idleCtx, cancel := context.WithTimeout(ctx, t.idleTimeout)
	defer cancel()
	if err := t.page.WaitIdle(idleCtx); err != nil {
		if fatal(ctx, err) {
			return clicked, err
		}
		t.logger.WithError(err).Debug("Page did not reach network idle, continuing")
	}
	return clicked, nil
}
