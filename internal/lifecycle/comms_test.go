package lifecycle

import "testing"

func TestClassifyComm(t *testing.T) {
	tests := []struct {
		note string
		want CommType
	}{
		{"Sent email with revised quote", CommEmail},
		{"E-mail bounced, will retry", CommEmail},
		{"SMS reminder sent re: post install", CommSMS},
		{"Texted client about access", CommSMS},
		{"Called client, left voicemail", CommCall},
		{"Phone discussion about colour", CommCall},
		{"Rang to confirm Tuesday", CommCall},
		{"Site measurements attached", CommUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyComm(tt.note); got != tt.want {
			t.Errorf("ClassifyComm(%q) = %s, want %s", tt.note, got, tt.want)
		}
	}
}

// The classifier is substring-only and can misread a note that names one
// channel while describing another. That looseness is accepted; this test
// pins the behavior so nobody "fixes" it silently.
func TestClassifyComm_KnownAmbiguity(t *testing.T) {
	if got := ClassifyComm("Client emailed asking us to call back"); got != CommEmail {
		t.Errorf("first matching channel wins, got %s", got)
	}
}

func TestCommTypeFromMessageType(t *testing.T) {
	tests := []struct {
		messageType string
		want        CommType
	}{
		{"email_sent", CommEmail},
		{"SMS_RECEIVED", CommSMS},
		{"phone_call", CommCall},
		{"job_created", CommUnknown},
		{"", CommUnknown},
	}
	for _, tt := range tests {
		if got := CommTypeFromMessageType(tt.messageType); got != tt.want {
			t.Errorf("CommTypeFromMessageType(%q) = %s, want %s", tt.messageType, got, tt.want)
		}
	}
}

func TestClassifyDirection(t *testing.T) {
	tests := []struct {
		note string
		want CommDirection
	}{
		{"Client called asking about start date", DirectionInbound},
		{"Customer emailed photos of the boundary", DirectionInbound},
		{"Client replied to quote", DirectionInbound},
		{"Rang us to reschedule", DirectionInbound},
		{"Sent quote follow-up email", DirectionOutbound},
		{"Called client, no answer", DirectionOutbound},
	}
	for _, tt := range tests {
		if got := ClassifyDirection(tt.note); got != tt.want {
			t.Errorf("ClassifyDirection(%q) = %s, want %s", tt.note, got, tt.want)
		}
	}
}
