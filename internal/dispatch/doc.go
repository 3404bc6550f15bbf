// Package dispatch races outbound session operations against per-request
// deadlines, binding each to a unique correlation id.
package dispatch
