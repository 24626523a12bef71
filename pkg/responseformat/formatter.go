package responseformat

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgPack is the media type for MessagePack bodies
const ContentTypeMsgPack = "application/x-msgpack"

// Formatter handles encoding and decoding bodies in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WantsMsgPack reports whether the client asked for MessagePack, either with
// format=msgpack or an Accept header
func WantsMsgPack(req *http.Request) bool {
	if req.URL.Query().Get("format") == "msgpack" {
		return true
	}
	mt, _, err := mime.ParseMediaType(req.Header.Get("Accept"))
	return err == nil && mt == ContentTypeMsgPack
}

// IsMsgPack reports whether the request body is MessagePack
func IsMsgPack(req *http.Request) bool {
	mt, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return err == nil && mt == ContentTypeMsgPack
}

// WriteResponse writes data with the given status code. JSON is the default
// format; MessagePack is used when the client asks for it.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	if WantsMsgPack(req) {
		w.Header().Set("Content-Type", ContentTypeMsgPack)
		w.WriteHeader(status)
		return f.writeMsgPack(w, data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes {"error": msg} with the given status code
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, msg string) error {
	return f.WriteResponse(w, req, status, map[string]string{"error": msg})
}

// DecodeBody decodes a JSON or MessagePack request body into v
func (f *Formatter) DecodeBody(req *http.Request, r io.Reader, v any) error {
	if IsMsgPack(req) {
		dec := msgpack.NewDecoder(r)
		dec.SetCustomStructTag("json")
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("invalid msgpack body: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (f *Formatter) writeMsgPack(w io.Writer, data any) error {
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}
