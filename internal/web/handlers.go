package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/duganchen/feedpreview/internal/feed"
	"github.com/duganchen/feedpreview/internal/preview"
)

// Previewer is the part of preview.Service the handlers need.
type Previewer interface {
	Preview(ctx context.Context, req preview.Request) (feed.Items, error)
}

// Handler serves the form page, the JSON preview endpoint and the health check.
type Handler struct {
	previewer Previewer
	templates *Templates
	log       zerolog.Logger
}

// NewHandler creates the HTTP handlers.
func NewHandler(previewer Previewer, templates *Templates, logger zerolog.Logger) *Handler {
	return &Handler{
		previewer: previewer,
		templates: templates,
		log:       logger.With().Str("component", "web").Logger(),
	}
}

type indexPage struct {
	URL     string
	Size    int
	Sizes   []int
	ItemTag string
	Output  string
	Error   string
}

// HandleIndex renders the preview form, and the result when a URL was submitted.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := indexPage{
		URL:     q.Get("url"),
		Size:    preview.DefaultSize,
		Sizes:   preview.AllowedSizes,
		ItemTag: q.Get("xml_item_tag"),
	}

	if page.URL != "" {
		items, size, err := h.preview(r, q)
		if size > 0 {
			page.Size = size
		}
		if err != nil {
			page.Error = err.Error()
		} else if out, err := prettyJSON(items); err != nil {
			page.Error = err.Error()
		} else {
			page.Output = out
		}
	}

	if err := h.templates.Render(w, "index.html", page); err != nil {
		h.log.Error().Err(err).Msg("render index")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandlePreview returns the preview as a JSON array of items.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	items, _, err := h.preview(r, r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleHealth reports that the process is serving.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// preview parses the query and runs the preview. The parsed size is returned
// even on error so the form can keep the user's selection.
func (h *Handler) preview(r *http.Request, q url.Values) (feed.Items, int, error) {
	size := preview.DefaultSize
	if raw := strings.TrimSpace(q.Get("size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %q", preview.ErrInvalidSize, raw)
		}
		size = n
	}

	req, err := preview.NewRequest(strings.TrimSpace(q.Get("url")), size, q.Get("xml_item_tag"))
	if err != nil {
		return nil, 0, err
	}

	items, err := h.previewer.Preview(r.Context(), req)
	if err != nil {
		h.log.Debug().Err(err).Str("kind", string(preview.KindOf(err))).Str("url", req.URL).Msg("preview failed")
		return nil, size, err
	}
	return items, size, nil
}

type errorResponse struct {
	Error string       `json:"error"`
	Kind  preview.Kind `json:"kind"`
}

func statusFor(kind preview.Kind) int {
	switch kind {
	case preview.KindInvalidURL, preview.KindInvalidSize:
		return http.StatusBadRequest
	case preview.KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := preview.KindOf(err)
	writeJSON(w, statusFor(kind), errorResponse{Error: err.Error(), Kind: kind})
}

// prettyJSON indents v for display. HTML escaping is left to the template.
func prettyJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
