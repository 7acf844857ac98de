package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Field is one key/value pair inside a namespace object.
type Field struct {
	Key   string
	Value any
}

// Document is the structured value carried by one attribute: a single
// namespace object whose fields keep their order.
//
// Decoded values are json.Number, string, bool, nil, or nested
// map[string]any / []any for unexpected shapes.
type Document struct {
	Namespace string
	Fields    []Field
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of key, or appends it when absent.
func (d *Document) Set(key string, v any) {
	for i := range d.Fields {
		if d.Fields[i].Key == key {
			d.Fields[i].Value = v
			return
		}
	}
	d.Fields = append(d.Fields, Field{Key: key, Value: v})
}

// Keys returns the field keys in document order.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Marshal renders doc as {"<namespace>":{"<key>":<value>,...}} with
// fields in document order.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeJSON(&buf, doc.Namespace); err != nil {
		return nil, err
	}
	buf.WriteString(":{")
	for i, f := range doc.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, f.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, f.Value); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// Encode marshals doc and wraps it in standard padded base64. The
// returned bytes are the ASCII base64 text exchanged with the device.
func Encode(doc Document) ([]byte, error) {
	raw, err := Marshal(doc)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Decode reverses Encode for the given namespace. Missing fields are
// simply absent from the result.
func Decode(data []byte, namespace string) (Document, error) {
	raw, err := unwrap(data)
	if err != nil {
		return Document{}, &DecodeError{Kind: KindMalformed, Namespace: namespace, Err: err}
	}
	return Unmarshal(raw, namespace)
}

// Unmarshal parses already un-wrapped JSON text.
func Unmarshal(raw []byte, namespace string) (Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Document{}, &DecodeError{Kind: KindNotStructured, Namespace: namespace, Err: fmt.Errorf("empty payload")}
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return Document{}, &DecodeError{Kind: KindNotStructured, Namespace: namespace, Err: err}
	}
	if outer == nil {
		return Document{}, &DecodeError{Kind: KindNotStructured, Namespace: namespace, Err: fmt.Errorf("payload is null")}
	}

	inner, ok := outer[namespace]
	if !ok {
		return Document{}, &DecodeError{
			Kind:      KindSchemaMismatch,
			Namespace: namespace,
			Err:       fmt.Errorf("namespace key %q not present", namespace),
		}
	}

	fields, err := readObject(inner)
	if err != nil {
		return Document{}, &DecodeError{Kind: KindSchemaMismatch, Namespace: namespace, Err: err}
	}
	return Document{Namespace: namespace, Fields: fields}, nil
}

// unwrap strips the base64 transport encoding. Padded input is
// preferred; unpadded input is tolerated.
func unwrap(data []byte) ([]byte, error) {
	text := string(bytes.TrimSpace(data))
	raw, err := base64.StdEncoding.DecodeString(text)
	if err == nil {
		return raw, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(text); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// readObject streams a JSON object and keeps key order. Duplicate keys
// keep the last value.
func readObject(raw json.RawMessage) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("namespace value is %s, not an object", describe(tok))
	}

	doc := Document{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		doc.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return doc.Fields, nil
}

func describe(tok json.Token) string {
	switch tok.(type) {
	case nil:
		return "null"
	case json.Delim:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	default:
		return fmt.Sprintf("%T", tok)
	}
}

// writeJSON encodes v without HTML escaping so the text matches what a
// JavaScript peer produces.
func writeJSON(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
