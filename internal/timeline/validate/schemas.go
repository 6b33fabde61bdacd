package validate

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Structural rules for clips and documents. Rules that span fields
// (mediaEnd > mediaStart) and the recovery defaults stay in Go.
var (
	//go:embed schemas/clip.schema.json
	clipSchema string

	//go:embed schemas/document.schema.json
	documentSchema string
)

var schemaCache sync.Map

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(name, source)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(name, compiled)
	return compiled, nil
}

// violations checks a normalized instance against a schema and returns one
// message per failing rule, sorted, in the form "<field> <problem>".
func violations(name, source string, instance any) []string {
	compiled, err := compileSchema(name, source)
	if err != nil {
		return []string{fmt.Sprintf("compile %s: %v", name, err)}
	}

	err = compiled.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}

	var out []string
	collectCauses(verr, &out)
	sort.Strings(out)
	return out
}

func collectCauses(e *jsonschema.ValidationError, out *[]string) {
	if len(e.Causes) == 0 {
		field := strings.ReplaceAll(strings.TrimPrefix(e.InstanceLocation, "/"), "/", ".")
		if field == "" {
			*out = append(*out, e.Message)
		} else {
			*out = append(*out, field+" "+e.Message)
		}
		return
	}
	for _, c := range e.Causes {
		collectCauses(c, out)
	}
}

// normalize converts v to the plain JSON types the validator understands.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return out, nil
}
