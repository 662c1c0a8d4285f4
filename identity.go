package courier

import "fmt"

// Device is an Identity derived from Cloud IoT Core device registry metadata.
type Device struct {
	ProjectID  string
	Region     string
	RegistryID string
	ID         string
}

var _ Identity = Device{}

// ClientID returns the fully qualified device path used as the MQTT client id.
func (d Device) ClientID() string {
	return fmt.Sprintf("projects/%s/locations/%s/registries/%s/devices/%s", d.ProjectID, d.Region, d.RegistryID, d.ID)
}

// DeviceID returns the device id within its registry.
func (d Device) DeviceID() string { return d.ID }

// ConfigTopic returns the topic on which the broker delivers device configuration.
func (d Device) ConfigTopic() string { return d.topic("config") }

// CommandsTopic returns the wildcard topic on which the broker delivers commands.
func (d Device) CommandsTopic() string { return d.topic("commands/#") }

// EventsTopic returns the telemetry topic.
func (d Device) EventsTopic() string { return d.topic("events") }

// StateTopic returns the device state topic.
func (d Device) StateTopic() string { return d.topic("state") }

func (d Device) topic(suffix string) string { return fmt.Sprintf("/devices/%s/%s", d.ID, suffix) }
