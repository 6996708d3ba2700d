package lifecycle

import "strings"

// CommType is the guessed channel of a logged communication.
type CommType string

const (
	CommEmail   CommType = "email"
	CommSMS     CommType = "sms"
	CommCall    CommType = "call"
	CommUnknown CommType = "note"
)

// CommDirection distinguishes client-initiated contact from our own.
type CommDirection string

const (
	DirectionInbound  CommDirection = "inbound"
	DirectionOutbound CommDirection = "outbound"
)

// ClassifyComm guesses the communication channel from free-text note
// content. Substring matching only; a note that mentions "email" while
// describing a phone call will be misclassified. Consumers treat the result
// as a hint (UI badges), so false negatives are acceptable.
func ClassifyComm(note string) CommType {
	s := strings.ToLower(note)
	switch {
	case strings.Contains(s, "email"), strings.Contains(s, "e-mail"):
		return CommEmail
	case strings.Contains(s, "sms"), strings.Contains(s, "text message"), strings.Contains(s, "texted"):
		return CommSMS
	case strings.Contains(s, "call"), strings.Contains(s, "phone"), strings.Contains(s, "rang"), strings.Contains(s, "voicemail"):
		return CommCall
	default:
		return CommUnknown
	}
}

// CommTypeFromMessageType maps a typed activity-feed message kind to a
// channel. Returns CommUnknown for kinds that aren't communications.
func CommTypeFromMessageType(messageType string) CommType {
	switch strings.ToLower(messageType) {
	case "email", "email_sent", "email_received":
		return CommEmail
	case "sms", "sms_sent", "sms_received":
		return CommSMS
	case "phone", "call", "phone_call":
		return CommCall
	default:
		return CommUnknown
	}
}

// ClassifyDirection guesses whether a note records the client contacting us.
// Inbound markers win over outbound ones since "client called back" style
// notes usually lead with the client.
func ClassifyDirection(note string) CommDirection {
	s := strings.ToLower(note)
	inbound := []string{"client called", "customer called", "client emailed", "customer emailed",
		"client texted", "customer texted", "received from", "client replied", "customer replied",
		"rang us", "called us", "emailed us", "texted us"}
	for _, k := range inbound {
		if strings.Contains(s, k) {
			return DirectionInbound
		}
	}
	return DirectionOutbound
}
