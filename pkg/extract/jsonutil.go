package extract

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexString decodes a JSON string, number or boolean as text; null decodes to "".
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	if data[0] == '[' || data[0] == '{' {
		// Lists keep their first textual element; objects are ignored.
		var items []flexString
		if data[0] == '[' && json.Unmarshal(data, &items) == nil {
			for _, it := range items {
				if strings.TrimSpace(string(it)) != "" {
					*s = it
					return nil
				}
			}
		}
		*s = ""
		return nil
	}
	*s = flexString(data)
	return nil
}

// flexNumber decodes a JSON number or a numeric string
type flexNumber struct {
	value float64
	valid bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*n = flexNumber{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	text := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil
	}
	*n = flexNumber{value: v, valid: true}
	return nil
}

func (n flexNumber) floatPtr() *float64 {
	if !n.valid {
		return nil
	}
	v := n.value
	return &v
}

func (n flexNumber) intPtr() *int {
	if !n.valid {
		return nil
	}
	v := int(n.value)
	return &v
}
