package meal

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	ReasonUnparseable = "unparseable"
	ReasonEmpty       = "empty"

	// DefaultItemName is used when the model omits an ingredient name.
	DefaultItemName = "—"

	// maxValue bounds any single numeric field of a model reply.
	maxValue = 1e6
)

// NormalizeError reports why a model reply could not be turned into an estimate.
type NormalizeError struct {
	Reason string
	Detail string
}

func (e *NormalizeError) Error() string {
	if e.Detail == "" {
		return "normalize estimate: " + e.Reason
	}
	return "normalize estimate: " + e.Reason + ": " + e.Detail
}

type rawEstimate struct {
	Items json.RawMessage `json:"items"`
}

type rawItem struct {
	Name    json.RawMessage `json:"name"`
	WeightG number          `json:"weight_g"`
	Cal     number          `json:"cal"`
	Protein number          `json:"protein"`
	Fat     number          `json:"fat"`
	Carbs   number          `json:"carbs"`
}

// Normalize turns an untrusted model reply into an Estimate.
//
// Recovery is deliberately lenient: code fences are stripped, the first balanced
// {...} span that decodes as an object is used even when wrapped in prose, missing or
// malformed numeric fields become 0, and any totals in the reply are ignored in favour
// of recomputing them from the items.
func Normalize(raw string) (Estimate, error) {
	obj, ok := recoverObject(raw)
	if !ok {
		return Estimate{}, &NormalizeError{Reason: ReasonUnparseable, Detail: "no JSON object found"}
	}

	var re rawEstimate
	if err := json.Unmarshal(obj, &re); err != nil {
		return Estimate{}, &NormalizeError{Reason: ReasonUnparseable, Detail: err.Error()}
	}

	itemsJSON := bytes.TrimSpace(re.Items)
	if len(itemsJSON) == 0 || bytes.Equal(itemsJSON, []byte("null")) {
		return Estimate{}, &NormalizeError{Reason: ReasonEmpty}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(itemsJSON, &elems); err != nil {
		return Estimate{}, &NormalizeError{Reason: ReasonUnparseable, Detail: "items is not a list"}
	}

	items := make([]Item, 0, len(elems))
	for _, el := range elems {
		var ri rawItem
		if !isObject(el) || json.Unmarshal(el, &ri) != nil {
			continue
		}
		items = append(items, Item{
			Name:    itemName(ri.Name),
			WeightG: ri.WeightG.value(),
			Nutrients: Nutrients{
				Cal:     ri.Cal.value(),
				Protein: ri.Protein.value(),
				Fat:     ri.Fat.value(),
				Carbs:   ri.Carbs.value(),
			}.rounded(),
		})
	}

	if len(items) == 0 {
		return Estimate{}, &NormalizeError{Reason: ReasonEmpty}
	}
	return NewEstimate(items), nil
}

// NormalizeNutrients reads a single-ingredient reply of the form
// {"cal":..,"protein":..,"fat":..,"carbs":..}. A reply carrying none of the four
// fields is treated as empty.
func NormalizeNutrients(raw string) (Nutrients, error) {
	obj, ok := recoverObject(raw)
	if !ok {
		return Nutrients{}, &NormalizeError{Reason: ReasonUnparseable, Detail: "no JSON object found"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return Nutrients{}, &NormalizeError{Reason: ReasonUnparseable, Detail: err.Error()}
	}

	found := false
	read := func(key string) float64 {
		b, ok := fields[key]
		if !ok {
			return 0
		}
		found = true
		var n number
		_ = n.UnmarshalJSON(b)
		return n.value()
	}

	n := Nutrients{
		Cal:     read("cal"),
		Protein: read("protein"),
		Fat:     read("fat"),
		Carbs:   read("carbs"),
	}
	if !found {
		return Nutrients{}, &NormalizeError{Reason: ReasonEmpty}
	}
	return n.rounded(), nil
}

// StripFences removes markdown code fence markers.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// recoverObject returns the first balanced {...} span of the fence-stripped text that
// decodes as a JSON object.
func recoverObject(raw string) ([]byte, bool) {
	s := StripFences(raw)
	for from := 0; from < len(s); {
		start, end, ok := ExtractObject(s[from:])
		if !ok {
			return nil, false
		}
		span := []byte(s[from+start : from+end])
		if json.Valid(span) && isObject(span) {
			return span, true
		}
		from += start + 1
	}
	return nil, false
}

// ExtractObject finds the first balanced {...} span in s, honouring JSON string
// quoting and escapes. It returns the half-open byte range of the span.
func ExtractObject(s string) (start, end int, ok bool) {
	for start = strings.IndexByte(s, '{'); start >= 0; {
		if end, ok = balancedEnd(s, start); ok {
			return start, end, true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return 0, 0, false
}

func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

func itemName(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return DefaultItemName
}

var leadingNumber = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?`)

// number accepts JSON numbers, numeric strings ("12,5", "150 g") and null.
// Anything else, and any negative, non-finite or implausibly large value, reads as 0.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		*n = 0
		return nil
	}
	switch t := v.(type) {
	case float64:
		*n = number(t)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", ".")
		f, err := strconv.ParseFloat(leadingNumber.FindString(s), 64)
		if err != nil {
			f = 0
		}
		*n = number(f)
	default:
		*n = 0
	}
	return nil
}

func (n number) value() float64 {
	f := float64(n)
	if f < 0 || math.IsNaN(f) || f > maxValue {
		return 0
	}
	return f
}
