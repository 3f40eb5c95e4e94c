package log

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidEvent is returned for an event whose payload does not match its
// category. Every trace event carries exactly one payload.
var ErrInvalidEvent = errors.New("invalid trace event")

// Trace files are a plain sequence of CBOR events with integer keys.
// Canonical key order makes an event encode to the same bytes every time.
var (
	traceEncMode cbor.EncMode
	traceDecMode cbor.DecMode
)

func init() {
	var err error

	traceEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace CBOR encoder mode: %v", err))
	}

	// Traces are written by this package only, so anything that is not a
	// definite-length map with unique keys is corruption.
	traceDecMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace CBOR decoder mode: %v", err))
	}
}

// Check reports whether e carries exactly one payload and that payload
// belongs to e.Category. Errors wrap ErrInvalidEvent.
func (e Event) Check() error {
	var (
		n    int
		kind Category
	)
	if e.Operation != nil {
		n, kind = n+1, CategoryOperation
	}
	if e.Reply != nil {
		n, kind = n+1, CategoryReply
	}
	if e.StateChange != nil {
		n, kind = n+1, CategoryState
	}
	if e.Error != nil {
		n, kind = n+1, CategoryError
	}

	switch {
	case n == 0:
		return fmt.Errorf("%w: %s event without payload", ErrInvalidEvent, e.Category)
	case n > 1:
		return fmt.Errorf("%w: %s event with %d payloads", ErrInvalidEvent, e.Category, n)
	case kind != e.Category:
		return fmt.Errorf("%w: %s payload in %s event", ErrInvalidEvent, kind, e.Category)
	}
	return nil
}

// EncodeEvent checks e and encodes it.
func EncodeEvent(e Event) ([]byte, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	return traceEncMode.Marshal(e)
}

// DecodeEvent decodes one event and checks it.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := traceDecMode.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if err := e.Check(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Encoder appends events to a trace stream.
type Encoder struct {
	enc *cbor.Encoder
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: traceEncMode.NewEncoder(w)}
}

// Encode checks e and writes it. Nothing is written for an invalid event.
func (e *Encoder) Encode(ev Event) error {
	if err := ev.Check(); err != nil {
		return err
	}
	return e.enc.Encode(ev)
}

// Decoder reads events from a trace stream.
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: traceDecMode.NewDecoder(r)}
}

// Decode returns the next event, or io.EOF at the end of the stream. An
// event that decodes but fails Check is consumed and reported as an error
// wrapping ErrInvalidEvent, so decoding can continue after it.
func (d *Decoder) Decode() (Event, error) {
	var e Event
	if err := d.dec.Decode(&e); err != nil {
		return Event{}, err
	}
	if err := e.Check(); err != nil {
		return Event{}, err
	}
	return e, nil
}
