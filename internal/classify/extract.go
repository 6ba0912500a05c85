package classify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrResponseUnrecognized means no classification JSON could be located in
// a model response. It is a degradation signal, not a failure: the
// accompanying classification carries default values.
var ErrResponseUnrecognized = errors.New("response unrecognized")

// Shape names the response envelope the extractor recognized.
type Shape string

const (
	ShapeNone       Shape = "none"
	ShapeCompletion Shape = "completion"
	ShapeContent    Shape = "content"
	ShapeResults    Shape = "results"
	ShapeMessages   Shape = "messages"
	ShapeOutput     Shape = "output"
	ShapeBare       Shape = "bare"
)

// Extraction is the outcome of reading one raw response.
type Extraction struct {
	Classification Classification
	Shape          Shape
	// Err is nil or wraps ErrResponseUnrecognized.
	Err error
}

// unwrapper recognizes one family's response envelope and returns the text
// the model generated. ok=false means the envelope did not match and the
// next unwrapper should be tried.
type unwrapper struct {
	shape Shape
	inner func(obj gjson.Result) (text string, ok bool)
}

// unwrappers are tried in order; an object matching none of them is taken
// to be the classification itself.
var unwrappers = []unwrapper{
	{ShapeCompletion, func(obj gjson.Result) (string, bool) {
		v := obj.Get("completion")
		return v.Str, v.Type == gjson.String
	}},
	{ShapeContent, func(obj gjson.Result) (string, bool) {
		return firstField(obj.Get("content"), "text")
	}},
	{ShapeResults, func(obj gjson.Result) (string, bool) {
		return firstField(obj.Get("results"), "outputText")
	}},
	{ShapeMessages, func(obj gjson.Result) (string, bool) {
		msg, ok := firstItem(obj.Get("messages"))
		if !ok {
			return "", false
		}
		return firstField(msg.Get("content"), "text")
	}},
	{ShapeOutput, func(obj gjson.Result) (string, bool) {
		return firstField(obj.Get("output.message.content"), "text")
	}},
}

// Extract recovers a classification from a raw model response. It never
// fails; anything it cannot read degrades to default field values.
func Extract(raw string) Extraction {
	obj, ok := recoverObject(raw)
	if !ok {
		return Extraction{
			Classification: Default(),
			Shape:          ShapeNone,
			Err:            fmt.Errorf("%w: no JSON object in response", ErrResponseUnrecognized),
		}
	}

	shape, body := unwrap(obj)
	if shape == ShapeBare {
		return Extraction{Classification: fields(obj), Shape: shape}
	}

	inner, ok := recoverObject(body)
	if !ok {
		return Extraction{
			Classification: Default(),
			Shape:          shape,
			Err:            fmt.Errorf("%w: %s text is not a JSON object", ErrResponseUnrecognized, shape),
		}
	}
	return Extraction{Classification: fields(inner), Shape: shape}
}

// recoverObject finds the JSON object in text. Text that is already an
// object is used as is; otherwise the span from the first '{' to the last
// '}' is tried.
func recoverObject(text string) (gjson.Result, bool) {
	candidate := strings.TrimSpace(text)
	if !strings.HasPrefix(candidate, "{") || !strings.HasSuffix(candidate, "}") {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start < 0 || end <= start {
			return gjson.Result{}, false
		}
		candidate = candidate[start : end+1]
	}

	if !gjson.Valid(candidate) {
		return gjson.Result{}, false
	}
	obj := gjson.Parse(candidate)
	if !obj.IsObject() {
		return gjson.Result{}, false
	}
	return obj, true
}

func unwrap(obj gjson.Result) (Shape, string) {
	for _, u := range unwrappers {
		if text, ok := u.inner(obj); ok {
			return u.shape, text
		}
	}
	return ShapeBare, ""
}

func firstItem(arr gjson.Result) (gjson.Result, bool) {
	if !arr.IsArray() {
		return gjson.Result{}, false
	}
	items := arr.Array()
	if len(items) == 0 {
		return gjson.Result{}, false
	}
	return items[0], true
}

func firstField(arr gjson.Result, field string) (string, bool) {
	item, ok := firstItem(arr)
	if !ok || !item.IsObject() {
		return "", false
	}
	v := item.Get(field)
	if !v.Exists() {
		return "", false
	}
	return v.String(), true
}

// fields reads the classification keys from obj. Missing or wrongly typed
// keys keep their defaults: model output is untrusted. A repeated key takes
// its last value, as encoding/json does.
func fields(obj gjson.Result) Classification {
	c := Default()

	last := make(map[string]gjson.Result)
	obj.ForEach(func(k, v gjson.Result) bool {
		last[k.Str] = v
		return true
	})

	if v := last["summary"]; v.Type == gjson.String {
		c.Summary = v.Str
	}
	if b, ok := boolValue(last["is_real_threat"]); ok {
		c.IsRealThreat = b
	}
	if v := last["action_type"]; v.Type == gjson.String {
		c.ActionType = normalizeAction(v.Str)
	}
	if v := last["ai_handling_message"]; v.Type == gjson.String {
		c.AIHandlingMessage = v.Str
	}
	if v := last["human_guidance_message"]; v.Type == gjson.String {
		c.HumanGuidanceMessage = v.Str
	}
	return c
}

func boolValue(v gjson.Result) (bool, bool) {
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		return b, err == nil
	default:
		return false, false
	}
}

func normalizeAction(s string) ActionType {
	a := ActionType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := modelActions[a]; ok {
		return a
	}
	return ActionUnknown
}

// ParseAction maps a stored action string back to an ActionType, accepting
// the pipeline-only failure value as well as the model-assignable ones.
func ParseAction(s string) ActionType {
	if a := ActionType(s); a == ActionInferenceFailed {
		return a
	}
	return normalizeAction(s)
}
