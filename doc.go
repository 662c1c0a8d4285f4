/*
Package courier keeps a single authenticated device session with a Cloud IoT
Core style MQTT bridge alive.

A Controller is driven by periodic calls to Tick. On every tick it refreshes the
authentication token before it expires, reconnects after a lost connection once
the backoff delay has passed, and otherwise lets the Transport service the
connection. Failed attempts are classified and logged together with the broker
and client id they were made with.

Example:

	package main

	import (
		"context"
		"crypto/tls"
		"fmt"
		"os"
		"os/signal"
		"syscall"

		courier "github.com/gojek/courier-iot"
		"github.com/gojek/courier-iot/credentials"
		"github.com/gojek/courier-iot/paho"
	)

	func main() {
		c, err := courier.NewController(
			courier.WithIdentity(courier.Device{
				ProjectID:  "my-project",
				Region:     "europe-west1",
				RegistryID: "sensors",
				ID:         "thermo-1",
			}),
			courier.WithCredentialProvider(credentials.NewFile("/var/lib/courier/token")),
			courier.WithTransport(paho.New(paho.WithTLS(&tls.Config{}))),
			courier.WithLTS(true),
		)
		if err != nil {
			panic(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_ = c.Run(ctx, func(m courier.Message) {
			fmt.Printf("%s: %s\n", m.Topic, m.Payload)
		})
	}
*/
package courier // import "github.com/gojek/courier-iot"
