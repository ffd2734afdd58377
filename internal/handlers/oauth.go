package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"strava-mirror/internal/oauth"
	"strava-mirror/internal/strava"
	"strava-mirror/internal/syncer"
	"strava-mirror/internal/worker"
)

// FullSyncer runs the initial sync after authorization
type FullSyncer interface {
	FullSync(ctx context.Context, athlete *strava.Athlete, accessToken string) (*syncer.Result, error)
}

// Launcher runs work detached from the request
type Launcher interface {
	Submit(name string, task worker.Task) bool
}

// OAuthHandler handles OAuth flow endpoints
type OAuthHandler struct {
	oauthManager *oauth.Manager
	syncer       FullSyncer
	launcher     Launcher
	scheme       string
	logger       *slog.Logger
}

// NewOAuthHandler creates a new OAuth handler. scheme is the custom URI
// scheme of the app that receives the result.
func NewOAuthHandler(oauthManager *oauth.Manager, fullSyncer FullSyncer, launcher Launcher, scheme string) *OAuthHandler {
	return &OAuthHandler{
		oauthManager: oauthManager,
		syncer:       fullSyncer,
		launcher:     launcher,
		scheme:       scheme,
		logger:       slog.Default(),
	}
}

// HandleAuthStart initiates the OAuth flow by redirecting to Strava
func (h *OAuthHandler) HandleAuthStart(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Starting OAuth flow")
	http.Redirect(w, r, h.oauthManager.AuthURL(), http.StatusFound)
}

// HandleCallback processes the OAuth callback from Strava. The response is
// always a page that forwards the browser to the app's deep link. The initial
// sync is only started once that page has been flushed.
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errorParam := query.Get("error"); errorParam != "" {
		h.logger.Warn("OAuth authorization denied", "error", errorParam)
		h.writeFailure(w, fmt.Errorf("%w: %s", oauth.ErrAuthorizationDenied, errorParam))
		return
	}

	conn, err := h.oauthManager.CompleteAuthorization(r.Context(), query.Get("code"), query.Get("scope"))
	if err != nil {
		h.logger.Error("Failed to handle OAuth callback", "error", err)
		h.writeFailure(w, err)
		return
	}

	athlete := conn.Athlete
	params := url.Values{
		"athleteId": {strconv.FormatInt(athlete.ID, 10)},
		"token":     {conn.SessionToken},
		"firstName": {athlete.FirstName},
		"lastName":  {athlete.LastName},
		"profile":   {athlete.Profile},
	}
	h.writeDeepLinkPage(w, "Authorization Successful", h.deepLink("auth-success", params))

	h.logger.Info("OAuth flow completed successfully", "athlete_id", athlete.ID)

	accessToken := conn.AccessToken
	accepted := h.launcher.Submit(fmt.Sprintf("full-sync:%d", athlete.ID), func(ctx context.Context) error {
		_, err := h.syncer.FullSync(ctx, athlete, accessToken)
		return err
	})
	if !accepted {
		h.logger.Warn("Full sync not launched, server is shutting down; run POST /athlete/{id}/sync later",
			"athlete_id", athlete.ID)
	}
}

func (h *OAuthHandler) writeFailure(w http.ResponseWriter, err error) {
	link := h.deepLink("auth-error", url.Values{"message": {err.Error()}})
	h.writeDeepLinkPage(w, "Authorization Failed", link)
}

func (h *OAuthHandler) deepLink(host string, params url.Values) string {
	return fmt.Sprintf("%s://%s?%s", h.scheme, host, params.Encode())
}

// writeDeepLinkPage sends a complete page that forwards to link. Some mobile
// browsers ignore a 302 to a custom scheme, so the page redirects itself.
func (h *OAuthHandler) writeDeepLinkPage(w http.ResponseWriter, title, link string) {
	jsLink, err := json.Marshal(link)
	if err != nil {
		jsLink = []byte(`""`)
	}
	escaped := html.EscapeString(link)

	var body bytes.Buffer
	fmt.Fprintf(&body, `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<meta http-equiv="refresh" content="0;url=%s">
	<title>%s</title>
	<style>
		body {
			font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif;
			max-width: 600px;
			margin: 100px auto;
			padding: 20px;
			text-align: center;
		}
		h1 { color: #FC4C02; }
		p { color: #666; line-height: 1.6; }
	</style>
</head>
<body>
	<h1>%s</h1>
	<p>Returning to the app. If nothing happens, <a href="%s">tap here</a>.</p>
	<script>window.location.replace(%s);</script>
</body>
</html>`, escaped, html.EscapeString(title), html.EscapeString(title), escaped, jsLink)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body.Bytes()); err != nil {
		h.logger.Error("Failed to write callback page", "error", err)
	}

	if err := http.NewResponseController(w).Flush(); err != nil {
		h.logger.Debug("Response writer does not support flushing", "error", err)
	}
}
