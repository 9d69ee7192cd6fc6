package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError lists every violation found in a document
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

type Compiler struct {
	compiler *js.Compiler
	cache    *expirable.LRU[string, *js.Schema]
}

// NewCompilerWithCache creates a new compiler with cache
func NewCompilerWithCache(maxSize int) *Compiler {
	c := js.NewCompiler()
	c.Draft = js.Draft2020
	c.AssertFormat = true
	// Only in-memory schemas may be referenced
	c.LoadURL = func(s string) (_ io.ReadCloser, err error) {
		return nil, fmt.Errorf("loading %s is not allowed", s)
	}

	return &Compiler{
		compiler: c,
		cache:    expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

func (c *Compiler) key(schema map[string]interface{}) (string, []byte, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// Prepare compiles and caches a schema
func (c *Compiler) Prepare(ctx context.Context, schema map[string]interface{}) error {
	_, err := c.compiled(schema)
	return err
}

func (c *Compiler) compiled(schema map[string]interface{}) (*js.Schema, error) {
	key, schemaBytes, err := c.key(schema)
	if err != nil {
		return nil, err
	}
	if compiled, ok := c.cache.Get(key); ok {
		return compiled, nil
	}

	resourceURL := fmt.Sprintf("mem://schema/%s.json", key[:16])
	if err := c.compiler.AddResource(resourceURL, bytes.NewReader(schemaBytes)); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}

	compiled, err := c.compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	c.cache.Add(key, compiled)
	return compiled, nil
}

// Validate validates a decoded JSON value against a schema
func (c *Compiler) Validate(ctx context.Context, schema map[string]interface{}, value interface{}) error {
	compiled, err := c.compiled(schema)
	if err != nil {
		return err
	}

	// Round-trip so Go values take their JSON shapes
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(valueBytes))
	dec.UseNumber()
	var valueRaw interface{}
	if err := dec.Decode(&valueRaw); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	if err := compiled.Validate(valueRaw); err != nil {
		var ve *js.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Problems: problems(ve)}
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// problems flattens the leaf causes of ve into "location: message" strings.
func problems(ve *js.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, problems(cause)...)
	}
	return out
}
