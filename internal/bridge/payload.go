package bridge

// payloadMaxLen is the maximum number of buffered flush cycles kept per
// bucket before the oldest is dropped, matching deque(maxlen=360) in
// Bridge._reset_payload.
const payloadMaxLen = 360

// payload holds the four bounded deques the Bridge accumulates flush
// cycles into between sends.
type payload struct {
	meta    *boundedDeque
	metrics *boundedDeque
	events  *boundedDeque
	configs *boundedDeque
}

func newPayload() *payload {
	return &payload{
		meta:    newBoundedDeque(payloadMaxLen),
		metrics: newBoundedDeque(payloadMaxLen),
		events:  newBoundedDeque(payloadMaxLen),
		configs: newBoundedDeque(payloadMaxLen),
	}
}

func (p *payload) reset() {
	p.meta.Reset()
	p.metrics.Reset()
	p.events.Reset()
	p.configs.Reset()
}

// Payload is the JSON wire shape sent to the control plane: the four
// deques flattened to lists, matching _pre_process_payload's
// deque-to-list conversion immediately before encoding.
type Payload struct {
	Meta    []interface{} `json:"meta"`
	Metrics []interface{} `json:"metrics"`
	Events  []interface{} `json:"events"`
	Configs []interface{} `json:"configs"`
}

// toWire flattens the deques into an encodable Payload, the Go equivalent
// of _pre_process_payload.
func (p *payload) toWire() *Payload {
	return &Payload{
		Meta:    p.meta.List(),
		Metrics: p.metrics.List(),
		Events:  p.events.List(),
		Configs: p.configs.List(),
	}
}
