package storyworld

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Extra holds the fields of a JSON object the document model does not know
// about, so they survive load and save untouched.
type Extra map[string]json.RawMessage

var knownFieldCache sync.Map // reflect.Type -> map[string]struct{}

func knownFields(t reflect.Type) map[string]struct{} {
	if cached, ok := knownFieldCache.Load(t); ok {
		return cached.(map[string]struct{})
	}
	fields := make(map[string]struct{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		fields[name] = struct{}{}
	}
	knownFieldCache.Store(t, fields)
	return fields
}

// decodeWithExtra unmarshals data into dst (a pointer to an alias struct)
// and returns the fields dst does not declare.
func decodeWithExtra(data []byte, dst any) (Extra, error) {
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	known := knownFields(reflect.TypeOf(dst).Elem())
	var extra Extra
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(Extra)
		}
		extra[k] = v
	}
	return extra, nil
}

// encodeWithExtra marshals src (an alias struct) and merges extra into it.
// Declared fields win over extras with the same name.
func encodeWithExtra(src any, extra Extra) ([]byte, error) {
	data, err := marshal(src)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return marshal(all)
}

// marshal is json.Marshal without HTML escaping, so authored text keeps
// its characters.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
