package application

import (
	"context"
	"testing"

	"gallery/server/domain"
)

type sentMessage struct {
	to      domain.ParticipantID
	all     bool
	message *domain.Message
}

// recordingOutbox は送信されたメッセージをパースして記録します。
type recordingOutbox struct {
	t    *testing.T
	sent []sentMessage
}

func newRecordingOutbox(t *testing.T) *recordingOutbox {
	t.Helper()
	return &recordingOutbox{t: t}
}

func (o *recordingOutbox) Broadcast(_ context.Context, data []byte) {
	o.sent = append(o.sent, sentMessage{all: true, message: o.parse(data)})
}

func (o *recordingOutbox) SendTo(_ context.Context, id domain.ParticipantID, data []byte) {
	o.sent = append(o.sent, sentMessage{to: id, message: o.parse(data)})
}

func (o *recordingOutbox) parse(data []byte) *domain.Message {
	o.t.Helper()
	msg, err := domain.ParseMessage(data)
	if err != nil {
		o.t.Fatalf("outbox received malformed frame: %v", err)
	}
	return msg
}

// filter は dataType/subType に一致するメッセージを返します。
func (o *recordingOutbox) filter(dataType domain.DataType, subType uint8) []sentMessage {
	var out []sentMessage
	for _, s := range o.sent {
		if s.message.Is(dataType, subType) {
			out = append(out, s)
		}
	}
	return out
}

func (o *recordingOutbox) reset() { o.sent = nil }
