package message_broaker

import "context"

// MessageBroker carries serialised enqueue requests between processes.
// Consumers must Ack or Nack every Message they receive.
type MessageBroker interface {
	Publish(ctx context.Context, message []byte) error
	Consume(ctx context.Context) (<-chan Message, error)
	Close() error
}

type Message struct {
	Body []byte

	ack  func() error
	nack func(requeue bool) error
}

// NewMessage builds a Message whose settlement is delegated to ack and nack.
// Either may be nil.
func NewMessage(body []byte, ack func() error, nack func(requeue bool) error) Message {
	return Message{Body: body, ack: ack, nack: nack}
}

func (m Message) Ack() error {
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

func (m Message) Nack(requeue bool) error {
	if m.nack == nil {
		return nil
	}
	return m.nack(requeue)
}
