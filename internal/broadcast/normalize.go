// ABOUTME: Converts raw network messages into normalized broadcast payloads.
// ABOUTME: Body precedence: plain text, media caption, then a generic media marker.

package broadcast

import "github.com/blueriver/tars-gateway/internal/session"

// multimediaBody is the literal body used for media without a caption.
const multimediaBody = "multimedia message"

// Normalize derives a MessagePayload from a raw inbound message. The second
// return value is false for messages that must not be broadcast: those sent
// from the session's own account and those carrying no payload at all.
func Normalize(raw session.RawMessage) (MessagePayload, bool) {
	if raw.FromSelf {
		return MessagePayload{}, false
	}

	var body, kind string
	switch {
	case raw.Text != "":
		body, kind = raw.Text, "text"
	case raw.Caption != "":
		body, kind = raw.Caption, "caption"
	case raw.HasMedia:
		body, kind = multimediaBody, "media"
	default:
		return MessagePayload{}, false
	}

	sender := raw.SenderLabel
	if sender == "" {
		sender = raw.From
	}

	return MessagePayload{
		From:      raw.From,
		Sender:    sender,
		Message:   body,
		Timestamp: raw.TimestampMs,
		Type:      kind,
	}, true
}
