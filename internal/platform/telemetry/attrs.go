package telemetry

import (
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Metric attribute keys. Every value is drawn from a small fixed set: paths
// arrive already collapsed by the route labeller and tenant ids are never
// used as labels.
const (
	attrMethod  = attribute.Key("method")
	attrPath    = attribute.Key("path")
	attrStatus  = attribute.Key("status")
	attrResult  = attribute.Key("result")
	attrLayer   = attribute.Key("layer")
	attrBackend = attribute.Key("backend")
	attrReason  = attribute.Key("reason")
	attrSink    = attribute.Key("sink")
)

func statusAttr(status int) attribute.KeyValue {
	return attrStatus.String(strconv.Itoa(status))
}
