package models

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/punchamoorthee/creditgate/internal/domain"
)

// AccountResponse is returned by the fetch-account operation.
type AccountResponse struct {
	Email   string `json:"email"`
	Credits int64  `json:"credits"`
	IsPro   bool   `json:"is_pro"`
}

func NewAccountResponse(acc domain.Account) AccountResponse {
	return AccountResponse{Email: acc.Email, Credits: acc.Credits, IsPro: acc.IsPro}
}

// GenerateRequest is the payload for a metered generation. Exactly one of Theme or Prompt is set.
type GenerateRequest struct {
	Email  string `json:"email"`
	Theme  string `json:"theme,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// Validate normalizes the request in place and reports boundary violations.
func (r *GenerateRequest) Validate() error {
	email, err := NormalizeEmail(r.Email)
	if err != nil {
		return err
	}
	r.Email = email
	r.Theme = strings.TrimSpace(r.Theme)
	r.Prompt = strings.TrimSpace(r.Prompt)
	switch {
	case r.Theme == "" && r.Prompt == "":
		return fmt.Errorf("%w: theme or prompt required", domain.ErrInvalidInput)
	case r.Theme != "" && r.Prompt != "":
		return fmt.Errorf("%w: theme and prompt are mutually exclusive", domain.ErrInvalidInput)
	}
	return nil
}

// GenerateResponse carries the delivered image and the post-charge balance.
type GenerateResponse struct {
	Image    string `json:"image"`
	MIMEType string `json:"mime_type"`
	Credits  int64  `json:"credits"`
}

// CreateOrderResponse is returned after the processor opens a checkout order.
type CreateOrderResponse struct {
	OrderRef string `json:"order_ref"`
}

// CaptureRequest asks to settle a checkout order for an account.
type CaptureRequest struct {
	OrderRef string `json:"order_ref"`
	Email    string `json:"email"`
}

func (r *CaptureRequest) Validate() error {
	email, err := NormalizeEmail(r.Email)
	if err != nil {
		return err
	}
	r.Email = email
	r.OrderRef = strings.TrimSpace(r.OrderRef)
	if r.OrderRef == "" {
		return fmt.Errorf("%w: order_ref required", domain.ErrInvalidInput)
	}
	return nil
}

// CaptureResponse confirms a completed capture.
type CaptureResponse struct {
	Success bool  `json:"success"`
	Credits int64 `json:"credits"`
	IsPro   bool  `json:"is_pro"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Credits *int64 `json:"credits,omitempty"`
}

// NormalizeEmail lowercases and validates an address so it can be used as the account key.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: malformed email %q", domain.ErrInvalidInput, raw)
	}
	return trimmed, nil
}
