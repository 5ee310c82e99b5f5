package utils

import (
	"net/http"
	"net/url"
	"strings"
)

// URLFromRequest returns the externally visible scheme and host of r,
// honouring X-Forwarded-Proto and X-Forwarded-Host from a reverse proxy.
// A direct TLS connection is always https.
func URLFromRequest(r *http.Request) *url.URL {
	u := &url.URL{Scheme: "http", Host: r.Host}
	if v := r.Header.Get("X-Forwarded-Host"); v != "" {
		u.Host = v
	}
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		u.Scheme = "https"
	}
	return u
}

// BaseURLFromRequest is URLFromRequest as a string.
func BaseURLFromRequest(r *http.Request) string {
	return URLFromRequest(r).String()
}

// AbsoluteURL joins an absolute path onto the request's external base URL,
// for links returned in API responses.
func AbsoluteURL(r *http.Request, path string) string {
	u := URLFromRequest(r)
	u.Path = "/" + strings.TrimPrefix(path, "/")
	return u.String()
}
