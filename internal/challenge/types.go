// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package challenge

// Version is the x402 protocol version this server speaks.
const Version = 1

// PaymentRequirements is one acceptable way to pay for a resource, as
// advertised in a 402 response.
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
	MimeType          string         `json:"mimeType"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// PaymentRequiredResponse is the envelope carried both in the 402 body
// and, base64-encoded, in the WWW-Authenticate header.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// VerifyRequest is what the facilitator's /verify endpoint consumes.
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's answer. Anything other than an
// explicit IsValid=true is treated as a failed verification.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Transaction   string `json:"transaction,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Payer         string `json:"payer,omitempty"`
}
