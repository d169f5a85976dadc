package vote

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

func newJSONHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

// encode returns the canonical JSON encoding of v. Map keys are sorted so
// that equal values always produce equal bytes.
func encode(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, newJSONHandle())
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	dec := codec.NewDecoder(b, newJSONHandle())
	return dec.Decode(v)
}
