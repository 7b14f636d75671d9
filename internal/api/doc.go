// Package api hosts HTTP handlers that front the video ingest control
// plane's REST and websocket surface (§4.7).
//
// Handler coordinates request validation and response shaping while
// delegating every state change to lifecycle.Controller and all live
// status delivery to fanout.Service; the package holds no persistence or
// domain logic of its own. Health probes additionally consult Metadata
// and Objects directly since those are the two dependencies a deployment
// actually needs reachability signal on.
//
// Handler implementations assume upstream middleware from internal/server
// has already enforced rate limiting, metrics, auditing, and request
// logging. New routes should preserve that contract by avoiding duplicate
// validation and leaning on the middleware guarantees established in the
// server stack.
package api
