// Package diagnostics classifies transport errors and broker return codes
// reported after a failed connection attempt.
//
// Classification is a pure function, emitting the result is left to the caller.
package diagnostics

import "fmt"

// TransportError is the last error reported by the transport layer.
type TransportError int

// Transport errors, mirroring the lwmqtt error set used by constrained MQTT clients.
const (
	NoError TransportError = iota
	BufferTooShort
	VarnumOverflow
	NetworkFailedConnect
	NetworkTimeout
	NetworkFailedRead
	NetworkFailedWrite
	RemainingLengthOverflow
	RemainingLengthMismatch
	MissingOrWrongPacket
	ConnectionDenied
	FailedSubscription
	SubackArrayOverflow
	PongTimeout
	// TokenUnavailable is used when no authentication token could be minted.
	TokenUnavailable
)

var transportErrorNames = map[TransportError]string{
	NoError:                 "NO_ERROR",
	BufferTooShort:          "BUFFER_TOO_SHORT",
	VarnumOverflow:          "VARNUM_OVERFLOW",
	NetworkFailedConnect:    "NETWORK_FAILED_CONNECT",
	NetworkTimeout:          "NETWORK_TIMEOUT",
	NetworkFailedRead:       "NETWORK_FAILED_READ",
	NetworkFailedWrite:      "NETWORK_FAILED_WRITE",
	RemainingLengthOverflow: "REMAINING_LENGTH_OVERFLOW",
	RemainingLengthMismatch: "REMAINING_LENGTH_MISMATCH",
	MissingOrWrongPacket:    "MISSING_OR_WRONG_PACKET",
	ConnectionDenied:        "CONNECTION_DENIED",
	FailedSubscription:      "FAILED_SUBSCRIPTION",
	SubackArrayOverflow:     "SUBACK_ARRAY_OVERFLOW",
	PongTimeout:             "PONG_TIMEOUT",
	TokenUnavailable:        "TOKEN_UNAVAILABLE",
}

func (e TransportError) String() string {
	if s, ok := transportErrorNames[e]; ok {
		return s
	}

	return fmt.Sprintf("TRANSPORT_ERROR(%d)", int(e))
}

// ReturnCode is the CONNACK return code sent by the broker.
// Values match the MQTT 3.1.1 wire encoding.
type ReturnCode byte

// Broker return codes.
const (
	ConnectionAccepted    ReturnCode = 0x00
	UnacceptableProtocol  ReturnCode = 0x01
	IdentifierRejected    ReturnCode = 0x02
	ServerUnavailable     ReturnCode = 0x03
	BadUsernameOrPassword ReturnCode = 0x04
	NotAuthorized         ReturnCode = 0x05
	UnknownReturnCode     ReturnCode = 0xFF
)

var returnCodeNames = map[ReturnCode]string{
	ConnectionAccepted:    "CONNECTION_ACCEPTED",
	UnacceptableProtocol:  "UNACCEPTABLE_PROTOCOL",
	IdentifierRejected:    "IDENTIFIER_REJECTED",
	ServerUnavailable:     "SERVER_UNAVAILABLE",
	BadUsernameOrPassword: "BAD_USERNAME_OR_PASSWORD",
	NotAuthorized:         "NOT_AUTHORIZED",
	UnknownReturnCode:     "UNKNOWN_RETURN_CODE",
}

func (rc ReturnCode) String() string {
	if s, ok := returnCodeNames[rc]; ok {
		return s
	}

	return fmt.Sprintf("RETURN_CODE(%#02x)", byte(rc))
}

// Category groups diagnoses by what an operator should look at.
type Category string

// Categories.
const (
	CategoryOK            Category = "ok"
	CategoryNetwork       Category = "network"
	CategoryProtocol      Category = "protocol"
	CategoryCredentials   Category = "credentials"
	CategoryBroker        Category = "broker"
	CategoryConfiguration Category = "configuration"
	CategoryUnknown       Category = "unknown"
)

// Diagnosis is the classification of one failed connection attempt.
type Diagnosis struct {
	Error      TransportError
	ReturnCode ReturnCode
	Category   Category
	// Description is a human readable hint for the operator.
	Description string
	// InvalidateToken is set when the broker rejected the credentials and a
	// fresh token must be minted before the next attempt.
	InvalidateToken bool
}

// Classify maps a transport error and broker return code to a Diagnosis.
// A rejecting return code takes precedence over the transport error, since
// the transport usually reports CONNECTION_DENIED alongside it.
func Classify(err TransportError, rc ReturnCode) Diagnosis {
	d := Diagnosis{Error: err, ReturnCode: rc}

	switch rc {
	case BadUsernameOrPassword:
		d.Category, d.InvalidateToken = CategoryCredentials, true
		d.Description = "broker rejected the token as bad credentials, a new token will be minted"

		return d
	case NotAuthorized:
		d.Category, d.InvalidateToken = CategoryCredentials, true
		d.Description = "broker did not authorize the device, a new token will be minted"

		return d
	case UnacceptableProtocol:
		d.Category = CategoryProtocol
		d.Description = "broker does not accept the requested protocol version"

		return d
	case IdentifierRejected:
		d.Category = CategoryConfiguration
		d.Description = "broker rejected the client id, check the device registry path"

		return d
	case ServerUnavailable:
		d.Category = CategoryBroker
		d.Description = "broker is unavailable"

		return d
	case UnknownReturnCode:
		d.Category = CategoryUnknown
		d.Description = "broker sent an unknown return code"

		return d
	}

	d.Category, d.Description = classifyTransport(err)

	return d
}

func classifyTransport(err TransportError) (Category, string) {
	switch err {
	case NoError:
		return CategoryOK, "no error"
	case NetworkFailedConnect:
		return CategoryNetwork, "could not open a network connection, check connectivity or TLS settings"
	case NetworkTimeout, PongTimeout:
		return CategoryNetwork, "network operation timed out"
	case NetworkFailedRead, NetworkFailedWrite:
		return CategoryNetwork, "network read or write failed"
	case BufferTooShort, VarnumOverflow, RemainingLengthOverflow,
		RemainingLengthMismatch, MissingOrWrongPacket, SubackArrayOverflow:
		return CategoryProtocol, "malformed or unexpected packet"
	case ConnectionDenied:
		return CategoryBroker, "broker denied the connection"
	case FailedSubscription:
		return CategoryBroker, "broker refused a subscription"
	case TokenUnavailable:
		return CategoryCredentials, "no authentication token could be minted"
	default:
		return CategoryUnknown, "this error code should never be reached"
	}
}
