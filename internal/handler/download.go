package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/digikart/digikart/internal/download"
)

type issueTokenRequest struct {
	Order   string `json:"order"`
	Product string `json:"product"`
	Option  string `json:"option"`
}

type issueTokenResponse struct {
	Token string `json:"token"`
}

// IssueDownloadToken mints a signed, expiring download token for a purchased
// product. Every resolution failure collapses to 403 so callers cannot probe
// which orders or products exist.
func (h *Handler) IssueDownloadToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Order == "" || req.Product == "" {
		respondError(w, http.StatusBadRequest, "order and product are required")
		return
	}

	token, err := h.downloads.IssueToken(r.Context(), req.Order, req.Product, req.Option)
	if err != nil {
		if errors.Is(err, download.ErrNotVerified) {
			respondError(w, http.StatusForbidden, "download not verified")
			return
		}
		zctx.From(r.Context()).Error("issue download token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, issueTokenResponse{Token: token})
}

// DownloadFile redeems a token and streams the file. Tokens stay valid for
// repeat downloads until they expire.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	f, err := h.downloads.Consume(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, download.ErrFileMissing):
			respondError(w, http.StatusNotFound, "file not available")
		case errors.Is(err, download.ErrNotVerified):
			respondError(w, http.StatusForbidden, "download not verified")
		default:
			zctx.From(r.Context()).Error("download file", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	defer func() { _ = f.Content.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	if f.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f.Content)
}
