package sources

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://directory.local/schemas/"

var (
	schemasOnce sync.Once
	schemas     map[Backend]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[Backend]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		entries, err := schemaFS.ReadDir("schemas")
		if err != nil {
			schemasErr = fmt.Errorf("read embedded schemas: %w", err)
			return
		}
		for _, entry := range entries {
			raw, err := schemaFS.ReadFile("schemas/" + entry.Name())
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", entry.Name(), err)
				return
			}
			if err := compiler.AddResource(schemaBaseURL+entry.Name(), bytes.NewReader(raw)); err != nil {
				schemasErr = fmt.Errorf("register schema %s: %w", entry.Name(), err)
				return
			}
		}

		compiled := make(map[Backend]*jsonschema.Schema, len(Backends))
		for _, b := range Backends {
			s, err := compiler.Compile(schemaBaseURL + string(b) + ".json")
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", b, err)
				return
			}
			compiled[b] = s
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

// ValidateExtra checks the backend specific body of a source against the
// backend's JSON schema. Violations are reported as invalid data.
func ValidateExtra(backend Backend, extra json.RawMessage) error {
	compiled, err := compileSchemas()
	if err != nil {
		return err
	}
	schema, ok := compiled[backend]
	if !ok {
		return apperr.Invalid("backend", fmt.Sprintf("unknown backend %q", backend))
	}

	var document any
	if err := json.Unmarshal(extra, &document); err != nil {
		return apperr.Invalid("body", fmt.Sprintf("decode %s config: %v", backend, err))
	}
	if err := schema.Validate(document); err != nil {
		fe := apperr.FieldErrors{}
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			for _, cause := range leafCauses(verr) {
				field := cause.InstanceLocation
				if field == "" {
					field = "body"
				}
				fe.Add(field, cause.Message)
			}
		}
		if len(fe) == 0 {
			fe.Add("body", err.Error())
		}
		return &apperr.ValidationError{Fields: fe}
	}
	return nil
}

func leafCauses(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var out []*jsonschema.ValidationError
	for _, c := range err.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}
