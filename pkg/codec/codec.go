// Package codec implements the content negotiation the HTTP API and
// worker servers share: JSON, YAML, and msgpack encodings of the same
// wire types, selected by a request's format query parameter or
// Content-Type header.
package codec

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Codec encodes and decodes request/response bodies for one wire format.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	ContentType() string
}

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) ContentType() string          { return "application/json" }

type yamlCodec struct{}

func (yamlCodec) Encode(v any) ([]byte, error)    { return yaml.Marshal(v) }
func (yamlCodec) Decode(data []byte, v any) error { return yaml.Unmarshal(data, v) }
func (yamlCodec) ContentType() string             { return "application/yaml" }

type msgpackCodec struct{}

func (msgpackCodec) Encode(v any) ([]byte, error)    { return msgpack.Marshal(v) }
func (msgpackCodec) Decode(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) ContentType() string             { return "application/x-msgpack" }

var (
	JSON    Codec = jsonCodec{}
	YAML    Codec = yamlCodec{}
	Msgpack Codec = msgpackCodec{}
)

// ByName resolves a format name ("json", "yaml", "msgpack") to a Codec.
// Unknown names fall back to Msgpack, the documented default.
func ByName(name string) Codec {
	switch name {
	case "json":
		return JSON
	case "yaml":
		return YAML
	case "msgpack", "":
		return Msgpack
	default:
		return Msgpack
	}
}

// ByContentType resolves a Content-Type header value to a Codec.
func ByContentType(contentType string) Codec {
	switch contentType {
	case "application/json":
		return JSON
	case "application/yaml":
		return YAML
	default:
		return Msgpack
	}
}

// Negotiate picks the codec for a request: the "format" query parameter
// takes precedence, then Content-Type, then the msgpack default.
func Negotiate(r *http.Request) Codec {
	if format := r.URL.Query().Get("format"); format != "" {
		return ByName(format)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ByContentType(ct)
	}
	return Msgpack
}

// WriteBody encodes v with codec and writes it as the HTTP response body
// with a matching Content-Type and status code.
func WriteBody(w http.ResponseWriter, codec Codec, status int, v any) error {
	data, err := codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}
