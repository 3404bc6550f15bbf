// Package gateway serves the WebSocket surface of tars-gateway.
//
// One Gateway instance bridges a single chat-network session to any number
// of concurrent WebSocket clients. Clients submit operations (send_message,
// send_pdf, check_status) as JSON envelopes and receive both their own
// request results and the shared broadcast stream (qr, connection_status,
// new_message) on the same connection. Request results go only to the
// requesting client; broadcast events go to everyone.
//
// The package also exposes /health and /health/ready endpoints; readiness
// tracks the session state so orchestrators can gate traffic on a live
// chat-network connection.
package gateway
