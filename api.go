package delbin

import (
	"encoding/hex"
	"strings"
)

// Result is returned by Generate/Merge: the compiled bytes plus any
// non-fatal warnings collected along the way (spec §6.3).
type Result struct {
	Bytes    []byte
	Warnings []Warning
}

// ValidationResult is returned by the (not yet implemented) Validate
// operation.
type ValidationResult struct {
	OK       bool
	Errors   []*CompileError
	Warnings []Warning
}

// Generate compiles schema against env and sections into its bit-exact
// byte representation (spec §6.3). Grounded on clarete-langlang's
// GrammarFromBytes/GrammarTransformations pipeline shape: parse, then run
// each stage in order, stopping at the first error.
func Generate(schema string, env *Environment, sections *SectionStore) (Result, error) {
	if env == nil {
		env = NewEnvironment()
	}
	if sections == nil {
		sections = NewSectionStore(nil)
	}

	file, err := ParseSchema([]byte(schema))
	if err != nil {
		return Result{}, err
	}
	analysis, err := Analyze(file, env, sections)
	if err != nil {
		return Result{}, err
	}
	layout, err := PlanLayout(analysis, env, sections)
	if err != nil {
		return Result{}, err
	}
	data, warnings, err := Encode(analysis, layout, env, sections)
	if err != nil {
		return Result{}, err
	}
	return Result{Bytes: data, Warnings: warnings}, nil
}

// GenerateHex is Generate with its output bytes rendered as uppercase hex
// (spec §6.3).
func GenerateHex(schema string, env *Environment, sections *SectionStore) (string, []Warning, error) {
	res, err := Generate(schema, env, sections)
	if err != nil {
		return "", nil, err
	}
	return strings.ToUpper(hex.EncodeToString(res.Bytes)), res.Warnings, nil
}

// Merge compiles schema the same way Generate does, registering
// imageBytes under the reserved "image" section name (so the schema
// itself can reference it via `@sizeof(image)`/`@bytes(image)`), then
// appends imageBytes after the struct's own bytes (spec §6.3).
func Merge(schema string, env *Environment, imageBytes []byte) (Result, error) {
	sections := NewSectionStore(nil)
	sections.set("image", imageBytes)

	res, err := Generate(schema, env, sections)
	if err != nil {
		return Result{}, err
	}
	out := make([]byte, 0, len(res.Bytes)+len(imageBytes))
	out = append(out, res.Bytes...)
	out = append(out, imageBytes...)
	return Result{Bytes: out, Warnings: res.Warnings}, nil
}

// Parse reads fixed-layout bytes back into field values. Not yet
// implemented: the pipeline currently only runs forward, schema+env to
// bytes, not backward, bytes to field values (spec §6.3, §9 open
// questions).
func Parse(schema string, data []byte) (map[string]Value, error) {
	return nil, newErrNoSpan(ErrNotImplemented, "Parse is not yet implemented")
}

// Validate checks that data conforms to schema. Not yet implemented, for
// the same reason as Parse.
func Validate(schema string, data []byte, sections *SectionStore) (ValidationResult, error) {
	return ValidationResult{}, newErrNoSpan(ErrNotImplemented, "Validate is not yet implemented")
}
