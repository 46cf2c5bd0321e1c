// Package infra groups the adapters to the outside world: the battery UDP
// protocol, the P1 meter, MQTT, metrics backends and error reporting.
package infra
