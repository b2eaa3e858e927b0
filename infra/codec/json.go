package codec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

type JSONSerializer struct{}

func (JSONSerializer) Name() string        { return "json" }
func (JSONSerializer) ContentType() string { return "application/json" }

func (JSONSerializer) Encode(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

func (JSONSerializer) Decode(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%v", err)
	}
	return &e, nil
}
