package courier

import (
	"context"

	"github.com/gojek/courier-iot/diagnostics"
)

// ConnectionInformer can be used to get information about the connection
type ConnectionInformer interface {
	// IsConnected checks whether the session is connected to the broker
	IsConnected() bool
}

// ConnectParams carries everything a Transport needs for one connection attempt.
type ConnectParams struct {
	Broker       TCPAddress
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
}

// Transport is a connected MQTT session. Implementations own the wire protocol,
// TLS and socket handling; the Controller only drives them.
type Transport interface {
	ConnectionInformer

	// Connect opens a session with the broker and reports whether it succeeded.
	Connect(ctx context.Context, params ConnectParams) bool
	// Disconnect closes the current session, if any.
	Disconnect()
	// Subscribe registers handler for messages on topic.
	Subscribe(topic string, qos QOSLevel, handler MessageHandler) bool
	// Publish sends payload to topic.
	Publish(topic string, payload []byte, retained bool, qos QOSLevel) bool
	// LastError returns the error of the most recent operation.
	LastError() diagnostics.TransportError
	// ReturnCode returns the broker return code of the most recent connection attempt.
	ReturnCode() diagnostics.ReturnCode
	// Pump processes one iteration of inbound handling and keepalive.
	Pump()
}

// Identity supplies the stable identifiers of a device.
type Identity interface {
	ClientID() string
	DeviceID() string
	ConfigTopic() string
	CommandsTopic() string
	EventsTopic() string
	StateTopic() string
}
