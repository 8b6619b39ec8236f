package telemetry

import "go.opentelemetry.io/otel/attribute"

func sourceAttr(source string) attribute.KeyValue {
	return attribute.String("source", source)
}

func componentAttr(component string) attribute.KeyValue {
	return attribute.String("component", component)
}
