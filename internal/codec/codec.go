// Package codec is the wire encoding shared by gateway and backend
// services. Values are CBOR; struct fields fall back to their json tags so
// domain types need a single set of tags.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode //nolint:gochecknoglobals // initialised once
	decMode cbor.DecMode //nolint:gochecknoglobals // initialised once
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// uuid.UUID and time.Time round-trip as text.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.BinaryMarshaler = cbor.BinaryMarshalerNone
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Payloads decoded into any must look like JSON-decoded maps.
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler:   cbor.TextUnmarshalerTextString,
		BinaryUnmarshaler: cbor.BinaryUnmarshalerNone,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

type RawMessage = cbor.RawMessage

type Encoder = cbor.Encoder

type Decoder = cbor.Decoder

func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
