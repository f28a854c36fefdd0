package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a generation call did not produce a payload.
// The set is closed; callers switch on it instead of inspecting messages.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindCanceled  Kind = "canceled"
	KindTransport Kind = "transport"
	KindUpstream  Kind = "upstream"
	KindMalformed Kind = "malformed"
	KindEmpty     Kind = "empty"
)

// Error is the only error type a Generator returns.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind from err, treating anything unclassified as a transport failure.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindTransport
}

// Input is what the caller asks to render: either a free-text theme or a fully composed prompt.
type Input struct {
	Theme  string
	Prompt string
}

// Text returns the instruction sent to the model.
func (in Input) Text() string {
	if p := strings.TrimSpace(in.Prompt); p != "" {
		return p
	}
	return fmt.Sprintf(
		"Create a background image for a marketing banner. Theme: %s. "+
			"Leave clear space for headline text, do not render any words or logos, "+
			"use a wide landscape composition.",
		strings.TrimSpace(in.Theme),
	)
}

// Payload is a single generated image.
type Payload struct {
	MIMEType string
	Data     []byte
}

// Result is the set of payloads returned by one provider call.
type Result struct {
	Payloads []Payload
}

// Generator is the external paid generation service. Each call is billed.
type Generator interface {
	Generate(ctx context.Context, in Input) (Result, error)
}
