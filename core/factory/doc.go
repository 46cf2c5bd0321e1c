// Package factory builds pluggable components, such as metrics sinks, from
// a type name and a map of raw settings.
//
//	reg := factory.NewRegistry[metrics.Sink]()
//	_ = reg.Register("prometheus", newPromSink)
//	sink, err := reg.Create(factory.ModuleConfig{Type: "prometheus"})
package factory
