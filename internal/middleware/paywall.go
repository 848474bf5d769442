// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package middleware

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tollgate/internal/challenge"
)

// paywallTmpl is the human-facing 402 page. It embeds the same envelope
// the machine path returns so a browser extension or wallet can pick it
// up without refetching.
var paywallTmpl = template.Must(template.New("paywall").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Payment Required</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 4rem auto; padding: 0 1rem; color: #222; }
.amount { font-size: 2rem; font-weight: 600; }
.meta { color: #666; font-size: 0.9rem; }
code { background: #f4f4f4; padding: 0.1rem 0.3rem; border-radius: 3px; word-break: break-all; }
</style>
<script type="application/x402+json">{{.EnvelopeJSON}}</script>
</head>
<body>
<h1>Payment required</h1>
<p>This content is paid. Complete the payment below to continue.</p>
<p class="amount">{{.Amount}} <span class="meta">{{.Currency}} ({{.Network}})</span></p>
<p class="meta">Pay to <code>{{.PayTo}}</code></p>
<p class="meta">Resource: <code>{{.Resource}}</code></p>
{{if .Error}}<p class="meta">Last attempt: {{.Error}}</p>{{end}}
</body>
</html>
`))

type paywallData struct {
	// json.Marshal escapes <, > and & so the payload can never close
	// the script element early.
	EnvelopeJSON template.HTML
	Amount       string
	Currency     string
	Network      string
	PayTo        string
	Resource     string
	Error        string
}

func writePaywallHTML(c *gin.Context, env challenge.PaymentRequiredResponse) {
	raw, err := json.Marshal(env)
	if err != nil {
		c.JSON(http.StatusPaymentRequired, env)
		return
	}

	reqs := env.Accepts[0]
	data := paywallData{
		EnvelopeJSON: template.HTML(raw),
		Amount:       humanAmount(reqs.MaxAmountRequired),
		Currency:     "USDC",
		Network:      reqs.Network,
		PayTo:        reqs.PayTo,
		Resource:     reqs.Resource,
		Error:        env.Error,
	}

	c.Status(http.StatusPaymentRequired)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := paywallTmpl.Execute(c.Writer, data); err != nil {
		slog.Error("Paywall template render failed", "error", err)
	}
}

// humanAmount renders a six-decimal atomic amount as a decimal string,
// e.g. "100000" -> "0.10".
func humanAmount(atomic string) string {
	for len(atomic) < 7 {
		atomic = "0" + atomic
	}
	whole := atomic[:len(atomic)-6]
	frac := atomic[len(atomic)-6:]

	// Trim trailing zeros but keep at least two decimal places.
	for len(frac) > 2 && frac[len(frac)-1] == '0' {
		frac = frac[:len(frac)-1]
	}
	return whole + "." + frac
}
