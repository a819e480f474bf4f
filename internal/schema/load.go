package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// File is the YAML document shape of an entity type definition file.
//
//	types:
//	  - name: article
//	    label_field: label
//	    fields:
//	      - {name: label, type: string, required: true}
//	      - {name: content, type: string, structural: true}
//	    states:
//	      - {name: draft, initial: true}
//	      - {name: active}
//	    transitions:
//	      - {from: draft, to: active}
//	      - {from: active, to: draft, on: structural-change}
type File struct {
	Types []EntityType `yaml:"types"`
}

// ParseYAML decodes entity type definitions from YAML.
// Unknown keys are rejected.
func ParseYAML(data []byte) ([]EntityType, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse entity types: %w", err)
	}
	return f.Types, nil
}

// CompileCUE decodes entity type definitions from CUE source.
//
// The source declares one struct per type under `entity`, with fields as
// a struct so declaration order is preserved:
//
//	entity: article: {
//		label_field: "label"
//		fields: {
//			label: {type: "string", required: true}
//			content: {type: "string", structural: true}
//		}
//		states: [{name: "draft", initial: true}, {name: "active"}]
//		transitions: [{from: "draft", to: "active"}]
//	}
func CompileCUE(src []byte, filename string) ([]EntityType, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entity types declared", Pos: v.Pos()}
	}

	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []EntityType
	for iter.Next() {
		def, err := compileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func compileEntity(name string, v cue.Value) (EntityType, error) {
	def := EntityType{Name: name}

	if lf := v.LookupPath(cue.ParsePath("label_field")); lf.Exists() {
		s, err := lf.String()
		if err != nil {
			return def, formatCUEError(err)
		}
		def.LabelField = s
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return def, &CompileError{Field: "entity." + name + ".fields", Message: "fields are required", Pos: v.Pos()}
	}
	fields, err := fieldsVal.Fields()
	if err != nil {
		return def, formatCUEError(err)
	}
	for fields.Next() {
		var f Field
		if err := fields.Value().Decode(&f); err != nil {
			return def, formatCUEError(err)
		}
		f.Name = fields.Label()
		def.Fields = append(def.Fields, f)
	}

	if states := v.LookupPath(cue.ParsePath("states")); states.Exists() {
		if err := states.Decode(&def.States); err != nil {
			return def, formatCUEError(err)
		}
	} else {
		return def, &CompileError{Field: "entity." + name + ".states", Message: "states are required", Pos: v.Pos()}
	}

	if trs := v.LookupPath(cue.ParsePath("transitions")); trs.Exists() {
		if err := trs.Decode(&def.Transitions); err != nil {
			return def, formatCUEError(err)
		}
	}

	return def, nil
}

// LoadFile reads definitions from a .yaml/.yml or .cue file.
func LoadFile(path string) ([]EntityType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity types: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return CompileCUE(data, path)
	default:
		return nil, fmt.Errorf("unsupported entity type file %q: want .yaml, .yml or .cue", path)
	}
}

// LoadRegistry loads every file and registers the types into a new Registry.
func LoadRegistry(paths ...string) (*Registry, error) {
	reg := NewRegistry()
	for _, p := range paths {
		defs, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterAll(defs); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return reg, nil
}
