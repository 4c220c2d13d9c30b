// Package schema validates API request bodies against JSON Schemas before
// they are decoded into handler structs.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxBodyBytes caps the size of a request body accepted by Decode.
const MaxBodyBytes = 10 << 20

// Schema names accepted by Decode.
const (
	Register      = "register"
	Login         = "login"
	Settings      = "settings"
	TopUp         = "topup"
	TariffChange  = "tariff_change"
	ServiceToggle = "service_toggle"
)

const phoneSchema = `{"type": "string", "pattern": "^\\+?[0-9]{5,15}$"}`

var sources = map[string]string{
	Register: `{
		"type": "object",
		"required": ["fio", "phone", "password"],
		"properties": {
			"fio": {"type": "string", "minLength": 1, "maxLength": 200},
			"phone": ` + phoneSchema + `,
			"password": {"type": "string", "minLength": 1, "maxLength": 72}
		}
	}`,
	Login: `{
		"type": "object",
		"required": ["phone", "password"],
		"properties": {
			"phone": ` + phoneSchema + `,
			"password": {"type": "string", "minLength": 1}
		}
	}`,
	Settings: `{
		"type": "object",
		"required": ["fio", "phone"],
		"properties": {
			"fio": {"type": "string", "minLength": 1, "maxLength": 200},
			"phone": ` + phoneSchema + `
		}
	}`,
	TopUp: `{
		"type": "object",
		"required": ["phone", "amount"],
		"properties": {
			"phone": ` + phoneSchema + `,
			"amount": {"type": "number", "exclusiveMinimum": 0, "maximum": 100000},
			"method": {"type": "string", "maxLength": 64}
		}
	}`,
	TariffChange: `{
		"type": "object",
		"required": ["phone", "tariffId"],
		"properties": {
			"phone": ` + phoneSchema + `,
			"tariffId": {"type": "string", "minLength": 1}
		}
	}`,
	ServiceToggle: `{
		"type": "object",
		"required": ["phone", "serviceName", "activate"],
		"properties": {
			"phone": ` + phoneSchema + `,
			"serviceName": {"type": "string", "minLength": 1},
			"activate": {"type": "boolean"}
		}
	}`,
}

var compiled = mustCompileAll()

// ErrBodyTooLarge is returned when a body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// Error describes why a body failed validation.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Decode reads a JSON body from r, validates it against the named schema and
// decodes it into dst.
func Decode(r io.Reader, name string, dst any) error {
	sch, ok := compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if len(data) > MaxBodyBytes {
		return ErrBodyTooLarge
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return &Error{Message: "invalid JSON body"}
	}

	if err := sch.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return leafError(verr)
		}
		return &Error{Message: err.Error()}
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return &Error{Message: "invalid JSON body"}
	}
	return nil
}

func leafError(verr *jsonschema.ValidationError) *Error {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	return &Error{
		Field:   strings.TrimPrefix(verr.InstanceLocation, "/"),
		Message: verr.Message,
	}
}

func mustCompileAll() map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, len(sources))
	for name, src := range sources {
		url := "mem://portal/" + name + ".json"
		c := jsonschema.NewCompiler()
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("schema %s: %v", name, err))
		}
		out[name] = c.MustCompile(url)
	}
	return out
}
