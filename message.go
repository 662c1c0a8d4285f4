package courier

// Message is an inbound message received on one of the device topics.
type Message struct {
	ID        uint16
	Topic     string
	Payload   []byte
	QoS       QOSLevel
	Duplicate bool
	Retained  bool
}

// MessageHandler processes an inbound Message.
type MessageHandler func(Message)
