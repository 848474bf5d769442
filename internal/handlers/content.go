// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tollgate/internal/middleware"
	"tollgate/internal/store"
)

var contentTmpl = template.Must(template.New("content").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<article>
<h1>{{.Title}}</h1>
{{.Body}}
</article>
</body>
</html>
`))

// ContentHandler serves resources that passed the gate. The payment-gate
// middleware runs first and leaves the loaded resource in the context.
type ContentHandler struct {
	Store store.Store
}

func NewContentHandler(st store.Store) *ContentHandler {
	return &ContentHandler{Store: st}
}

func (h *ContentHandler) Get(c *gin.Context) {
	res := h.resource(c)
	if res == nil {
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(http.StatusOK, res)
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := contentTmpl.Execute(c.Writer, gin.H{
		"Title": res.Title,
		"Body":  template.HTML(res.Body),
	}); err != nil {
		slog.Error("Content render failed", "slug", res.Slug, "error", err)
	}
}

func (h *ContentHandler) resource(c *gin.Context) *store.Resource {
	if cached, ok := c.Get(middleware.ResourceKey); ok {
		if res, ok := cached.(*store.Resource); ok {
			return res
		}
	}

	res, err := h.Store.GetResourceBySlug(c.Request.Context(), c.Param("slug"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such resource"})
		return nil
	}
	if err != nil {
		slog.Error("Resource load failed", "slug", c.Param("slug"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resource unavailable"})
		return nil
	}
	return res
}
