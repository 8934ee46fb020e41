package operations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Params are the operation parameters. Values may arrive as strings or numbers.
type Params map[string]interface{}

// UnmarshalJSON keeps numbers as json.Number so large ids survive decoding
func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*p = m
	return nil
}

// Get returns the parameter as a string, formatting numbers without exponent
func (p Params) Get(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// Format renders params as key=value pairs in key order, for log lines
func (p Params) Format(f fmt.State, verb rune) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+p.Get(k))
	}
	fmt.Fprint(f, strings.Join(parts, ", "))
}
