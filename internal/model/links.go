package model

import (
	"net/url"
	"strings"
)

// Relay endpoint paths.
const (
	StreamPath   = "/api/stream"
	DownloadPath = "/api/download"
)

// ProxyLinks are the playback and download URLs handed to the client for a
// finished job.
type ProxyLinks struct {
	StreamURL   string
	DownloadURL string
}

// NewProxyLinks derives the links for resultURL. Playback goes straight to
// the upstream asset; downloads go through the relay.
func NewProxyLinks(resultURL string) ProxyLinks {
	return ProxyLinks{
		StreamURL:   resultURL,
		DownloadURL: RelayURL(DownloadPath, resultURL),
	}
}

// RelayURL builds a relay endpoint URL carrying resultURL in its url query
// parameter.
func RelayURL(path, resultURL string) string {
	return path + "?url=" + EncodeRelayURL(resultURL)
}

// EncodeRelayURL percent-encodes every reserved character of u, spaces
// included, so the relay's query parser returns u unchanged.
func EncodeRelayURL(u string) string {
	return strings.ReplaceAll(url.QueryEscape(u), "+", "%20")
}
