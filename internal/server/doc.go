// Package server hosts the video ingest control-plane API from a single HTTP server.
//
// The server builds a consistent middleware chain of request identification,
// CORS, security headers, logging, auditing, metrics, and rate limiting so
// handlers all share common protections and instrumentation.
//
// It serves the upload/video/websocket API routes, embeds the static control
// centre assets, and proxies the viewer when configured, keeping everything
// behind one multiplexer.
package server
