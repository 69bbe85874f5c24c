package eventBus

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Wire formats for events leaving the process.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Encode serialises e in the given format. An empty format means JSON.
func Encode(format string, e Event) ([]byte, error) {
	switch format {
	case "", FormatJSON:
		return json.Marshal(e)
	case FormatMsgpack:
		return msgpack.Marshal(e)
	default:
		return nil, fmt.Errorf("unknown event format %q", format)
	}
}

func Decode(format string, data []byte) (Event, error) {
	var e Event
	var err error
	switch format {
	case "", FormatJSON:
		err = json.Unmarshal(data, &e)
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &e)
	default:
		err = fmt.Errorf("unknown event format %q", format)
	}
	return e, err
}
