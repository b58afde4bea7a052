package daraja

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ResponseCodeAccepted is the ResponseCode/ResultCode Daraja uses for success.
const ResponseCodeAccepted = "0"

// Response is a decoded Daraja JSON object, kept verbatim for the audit trail.
// Numbers are json.Number so ids and codes keep their exact text.
type Response map[string]interface{}

// String returns the field as text. Numbers and booleans are formatted, anything else is "".
func (r Response) String(key string) string {
	s, _ := stringify(r[key])
	return s
}

func (r Response) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

func decodeResponse(body []byte) (Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("response is not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out Response
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
