package handlers

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/marcogenualdo/sso-relay/internal/host"
)

//go:embed templates/*
var templatesFS embed.FS

// maxFormBytes bounds form_post bodies; SAML responses are the largest.
const maxFormBytes = 1 << 20

// CallbackHandler turns a browser request on the loopback listener back into
// the redirect URI the authorization server sent, and delivers it.
type CallbackHandler struct {
	target   host.RedirectHandler
	origins  map[string]string
	logger   *slog.Logger
	template *template.Template
}

type CallbackPageData struct {
	Title   string
	Message string
	Error   string
}

// NewCallbackHandler serves the http(s) redirect URIs in redirectURLs. The
// delivered URI always uses the registered scheme and host, whatever Host
// header the browser sent.
func NewCallbackHandler(target host.RedirectHandler, redirectURLs []string, logger *slog.Logger) (*CallbackHandler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/callback.html")
	if err != nil {
		return nil, err
	}

	origins := make(map[string]string)
	for _, raw := range redirectURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		origins[callbackPath(u)] = u.Scheme + "://" + u.Host
	}

	return &CallbackHandler{
		target:   target,
		origins:  origins,
		logger:   logger,
		template: tmpl,
	}, nil
}

// Paths lists the request paths this handler must be mounted on.
func (h *CallbackHandler) Paths() []string {
	paths := make([]string, 0, len(h.origins))
	for p := range h.origins {
		paths = append(paths, p)
	}
	return paths
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin, ok := h.origins[callbackPath(r.URL)]
	if !ok {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		// form_post and the SAML POST binding: the form becomes the query.
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			h.logger.Warn("failed to parse callback form", "error", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		for k, v := range r.PostForm {
			query[k] = v
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uri := origin + r.URL.EscapedPath()
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	if !h.target.HandleRedirect(uri) {
		h.render(w, http.StatusBadRequest, CallbackPageData{
			Title:   "Sign-in link expired",
			Message: "This sign-in response does not match a pending request. It may have expired or already been used.",
		})
		return
	}

	if code := query.Get("error"); code != "" {
		h.render(w, http.StatusOK, CallbackPageData{
			Title:   "Sign-in not completed",
			Message: "The identity provider returned an error. You can close this window.",
			Error:   code,
		})
		return
	}

	h.render(w, http.StatusOK, CallbackPageData{
		Title:   "Signed in",
		Message: "You can close this window and return to the application.",
	})
}

func (h *CallbackHandler) render(w http.ResponseWriter, status int, data CallbackPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.template.Execute(w, data); err != nil {
		h.logger.Error("failed to render template", "error", err)
	}
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
