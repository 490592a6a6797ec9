package automation

import (
	"context"
	"errors"
)

// Channel identifies the capture mechanism that produced a document.
type Channel string

const (
	ChannelHref     Channel = "fetched_href"
	ChannelDownload Channel = "native_download"
	ChannelSniff    Channel = "sniffed_response"
)

// channelPriority orders channels when more than one produced bytes.
var channelPriority = []Channel{ChannelHref, ChannelDownload, ChannelSniff}

// Document is a captured PDF, handed to the caller and then discarded.
type Document struct {
	Bytes    []byte
	Filename string
}

// Outcome is the single result of one retrieval attempt. It is one of
// NativeDownload, SniffedResponse, FetchedHref, NotFound, ObstacleDetected
// or TransportFailure.
type Outcome interface {
	outcome()
}

type NativeDownload struct{ Document }

type SniffedResponse struct{ Document }

type FetchedHref struct{ Document }

type NotFound struct {
	Reason NotFoundReason
}

type ObstacleDetected struct {
	Kind ObstacleKind
}

type TransportFailure struct {
	Err error
}

func (NativeDownload) outcome()   {}
func (SniffedResponse) outcome()  {}
func (FetchedHref) outcome()      {}
func (NotFound) outcome()         {}
func (ObstacleDetected) outcome() {}
func (TransportFailure) outcome() {}

// Message returns the failure detail.
func (t TransportFailure) Message() string {
	if t.Err == nil {
		return "unknown error"
	}
	return t.Err.Error()
}

// DocumentOf extracts the captured document from a successful outcome.
func DocumentOf(o Outcome) (Document, bool) {
	switch v := o.(type) {
	case NativeDownload:
		return v.Document, true
	case SniffedResponse:
		return v.Document, true
	case FetchedHref:
		return v.Document, true
	}
	return Document{}, false
}

// Kind is a stable label for logs and counters.
func Kind(o Outcome) string {
	switch v := o.(type) {
	case NativeDownload:
		return string(ChannelDownload)
	case SniffedResponse:
		return string(ChannelSniff)
	case FetchedHref:
		return string(ChannelHref)
	case NotFound:
		return "not_found_" + string(v.Reason)
	case ObstacleDetected:
		return "obstacle"
	default:
		return "transport_error"
	}
}

func outcomeFor(channel Channel, doc Document) Outcome {
	switch channel {
	case ChannelHref:
		return FetchedHref{doc}
	case ChannelDownload:
		return NativeDownload{doc}
	default:
		return SniffedResponse{doc}
	}
}

// outcomeFromError folds a stage error into its outcome variant.
func outcomeFromError(err error) Outcome {
	var obstacle *ObstacleError
	if errors.As(err, &obstacle) {
		return ObstacleDetected{Kind: obstacle.Kind}
	}
	var missing *NotFoundError
	if errors.As(err, &missing) {
		return NotFound{Reason: missing.Reason}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportFailure{Err: &TransportError{Op: "retrieval deadline exceeded", Err: err}}
	}
	return TransportFailure{Err: err}
}
