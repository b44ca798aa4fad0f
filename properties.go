package eventadmin

import (
	"maps"

	"github.com/golobby/cast"
)

// Well-known property keys (spec §6 table).
const (
	PropertyTopics      = "event.topics"
	PropertyServiceID   = "service.id"
	PropertyDelivery    = "event.delivery"
	PropertyFilter      = "event.filter"
	PropertyDescription = "service.description"

	// DeliveryAsyncOrdered is the substring add_handler looks for in the delivery-mode
	// property to select ordered async delivery (spec §4.3: "default ordered").
	DeliveryAsyncOrdered = "async.ordered"
)

// Properties is the typed get/set property-map abstraction events and handler
// registrations carry (spec §3/§6: "a property-map abstraction with typed get/set and
// copy"). It is a thin map wrapper rather than a bespoke container type, matching the
// teacher's own Event.Metadata map[string]interface{} shape.
type Properties map[string]any

// NewProperties returns an empty, ready-to-use Properties map.
func NewProperties() Properties {
	return make(Properties)
}

// Clone performs the "copy" half of the typed get/set/copy contract: a shallow copy
// whose top-level keys are independent of the original (values themselves are not
// deep-copied, matching celix_properties semantics where stored values are opaque).
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// GetString returns the string value for key, or the zero value and false if absent
// or not coercible to a string.
func (p Properties) GetString(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, err := cast.ToString(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// GetStringOr is GetString with a fallback default.
func (p Properties) GetStringOr(key, def string) string {
	if s, ok := p.GetString(key); ok {
		return s
	}
	return def
}

// GetAsLong mirrors celix_properties_getAsLong: coerce the value at key to an int64,
// returning def if the key is absent or not coercible. Used for the required
// "service.id" property, which the host registry is expected to supply as an integer.
func (p Properties) GetAsLong(key string, def int64) int64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	n, err := cast.ToInt64(v)
	if err != nil {
		return def
	}
	return n
}

// GetAsBool coerces the value at key to a bool, returning def if absent or not
// coercible.
func (p Properties) GetAsBool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, err := cast.ToBool(v)
	if err != nil {
		return def
	}
	return b
}
