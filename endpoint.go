package courier

import "fmt"

const (
	// DefaultHost is the MQTT bridge hostname.
	DefaultHost = "mqtt.googleapis.com"
	// LTSHost is the long-term-support MQTT bridge hostname.
	LTSHost = "mqtt.2030.ltsapis.goog"
	// DefaultPort is the MQTT over TLS port.
	DefaultPort uint16 = 8883
	// HTTPSPort is the alternate port, usable where only HTTPS egress is allowed.
	HTTPSPort uint16 = 443
)

// TCPAddress specifies Host and Port for remote broker
type TCPAddress struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

func (t TCPAddress) String() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

func brokerAddress(o *controllerOptions) TCPAddress {
	addr := TCPAddress{Host: DefaultHost, Port: DefaultPort}

	if o.useLTS {
		addr.Host = LTSHost
	}

	if o.brokerHost != "" {
		addr.Host = o.brokerHost
	}

	if o.use443Port {
		addr.Port = HTTPSPort
	}

	return addr
}
