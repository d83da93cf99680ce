package iface

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/govm-net/contractum/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Semantic type names understood by the built-in registry.
const (
	SemAssetSpec     = "AssetSpec"
	SemContractTerms = "ContractTerms"
	SemTokenData     = "TokenData"
	SemEngraving     = "Engraving"
	SemBurnMeta      = "BurnMeta"
	SemIssueMeta     = "IssueMeta"
)

// AssetSpec describes a fungible asset.
type AssetSpec struct {
	Ticker    string `json:"ticker"`
	Name      string `json:"name"`
	Details   string `json:"details,omitempty"`
	Precision uint8  `json:"precision"`
}

// ContractTerms are the legal terms of a contract, with optional media.
type ContractTerms struct {
	Text  string           `json:"text"`
	Media *core.Attachment `json:"media,omitempty"`
}

// TokenData declares one unique token and its capabilities.
type TokenData struct {
	Index           uint32           `json:"index"`
	Ticker          string           `json:"ticker,omitempty"`
	Name            string           `json:"name,omitempty"`
	Details         string           `json:"details,omitempty"`
	Fractionable    bool             `json:"fractionable,omitempty"`
	Engravable      bool             `json:"engravable,omitempty"`
	AttachmentTypes []string         `json:"attachmentTypes,omitempty"`
	Media           *core.Attachment `json:"media,omitempty"`
}

// Engraving is an inscription added to an existing token.
type Engraving struct {
	TokenIndex uint32           `json:"tokenIndex"`
	Content    string           `json:"content"`
	Media      *core.Attachment `json:"media,omitempty"`
}

// ProofOfReserves points at an external reserve and the proof attesting it.
type ProofOfReserves struct {
	Utxo  string `json:"utxo"`
	Proof string `json:"proof"`
}

// BurnMeta is the meta-evidence of burn and replace operations.
type BurnMeta struct {
	BurnProofs []ProofOfReserves `json:"burnProofs"`
}

// IssueMeta is the meta-evidence of secondary issuance.
type IssueMeta struct {
	Reserves []ProofOfReserves `json:"reserves"`
}

const mediaSchema = `{
	"type": "object",
	"required": ["type", "digest"],
	"properties": {
		"type": {"type": "string", "pattern": "^[A-Za-z0-9!#$&^_.+-]+/[A-Za-z0-9!#$&^_.+*-]+$"},
		"digest": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
	},
	"additionalProperties": false
}`

const proofsSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["utxo", "proof"],
		"properties": {
			"utxo": {"type": "string", "minLength": 1},
			"proof": {"type": "string", "pattern": "^([0-9a-f]{2})*$"}
		},
		"additionalProperties": false
	}
}`

var builtinSchemas = map[string]string{
	SemAssetSpec: `{
		"type": "object",
		"required": ["ticker", "name", "precision"],
		"properties": {
			"ticker": {"type": "string", "pattern": "^[A-Z][A-Z0-9]{0,7}$"},
			"name": {"type": "string", "pattern": "^[ -~]{1,40}$"},
			"details": {"type": "string", "minLength": 1, "maxLength": 255},
			"precision": {"type": "integer", "minimum": 0, "maximum": 18}
		},
		"additionalProperties": false
	}`,
	SemContractTerms: `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string", "minLength": 1},
			"media": ` + mediaSchema + `
		},
		"additionalProperties": false
	}`,
	SemTokenData: `{
		"type": "object",
		"required": ["index"],
		"properties": {
			"index": {"type": "integer", "minimum": 0, "maximum": 4294967295},
			"ticker": {"type": "string", "maxLength": 8},
			"name": {"type": "string", "maxLength": 40},
			"details": {"type": "string", "maxLength": 255},
			"fractionable": {"type": "boolean"},
			"engravable": {"type": "boolean"},
			"attachmentTypes": {"type": "array", "items": {"type": "string", "minLength": 1}},
			"media": ` + mediaSchema + `
		},
		"additionalProperties": false
	}`,
	SemEngraving: `{
		"type": "object",
		"required": ["tokenIndex", "content"],
		"properties": {
			"tokenIndex": {"type": "integer", "minimum": 0, "maximum": 4294967295},
			"content": {"type": "string", "minLength": 1},
			"media": ` + mediaSchema + `
		},
		"additionalProperties": false
	}`,
	SemBurnMeta: `{
		"type": "object",
		"required": ["burnProofs"],
		"properties": {"burnProofs": ` + proofsSchema + `},
		"additionalProperties": false
	}`,
	SemIssueMeta: `{
		"type": "object",
		"required": ["reserves"],
		"properties": {"reserves": ` + proofsSchema + `},
		"additionalProperties": false
	}`,
}

var (
	schemaMu    sync.Mutex
	schemaCache = make(map[string]*jsonschema.Schema)
	customTypes = make(map[string]string)
)

// RegisterSemType adds a semantic type described by a JSON schema.
func RegisterSemType(name, schema string) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if _, exists := builtinSchemas[name]; exists {
		return fmt.Errorf("semantic type %s already registered", name)
	}
	if _, exists := customTypes[name]; exists {
		return fmt.Errorf("semantic type %s already registered", name)
	}
	if _, err := compileLocked(schema); err != nil {
		return err
	}
	customTypes[name] = schema
	return nil
}

// KnownSemType reports whether a semantic type is registered.
func KnownSemType(name string) bool {
	_, ok := lookupSchema(name)
	return ok
}

func lookupSchema(name string) (string, bool) {
	if s, ok := builtinSchemas[name]; ok {
		return s, true
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	s, ok := customTypes[name]
	return s, ok
}

func compileSchema(schema string) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	return compileLocked(schema)
}

func compileLocked(schema string) (*jsonschema.Schema, error) {
	key := core.GetHash([]byte(schema)).String()
	if compiled, ok := schemaCache[key]; ok {
		return compiled, nil
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://contractum.schemas.local/%s.schema.json", key)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	schemaCache[key] = compiled
	return compiled, nil
}

func validateAgainst(schema string, raw json.RawMessage) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateSemantic checks raw data against a semantic type.
func ValidateSemantic(semType string, raw json.RawMessage) error {
	schema, ok := lookupSchema(semType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSemType, semType)
	}
	if err := validateAgainst(schema, raw); err != nil {
		return fmt.Errorf("%s: %w", semType, err)
	}
	if semType == SemAssetSpec {
		var spec AssetSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return fmt.Errorf("%s: %w", semType, err)
		}
		return spec.Validate()
	}
	return nil
}

// ValidateMeta checks meta-evidence against the operation type's requirement.
func ValidateMeta(spec *MetaSpec, raw json.RawMessage) error {
	if spec == nil {
		return nil
	}
	if len(raw) == 0 {
		return fmt.Errorf("meta-evidence %s required", spec.Type)
	}
	if len(spec.Schema) > 0 {
		return validateAgainst(string(spec.Schema), raw)
	}
	return ValidateSemantic(spec.Type, raw)
}

// Decode unmarshals a data value into a semantic type.
func Decode[T any](v core.Value) (T, error) {
	var out T
	if v.Kind != core.KindData {
		return out, fmt.Errorf("expected data value, got %s", v.Kind)
	}
	if err := json.Unmarshal(v.Data, &out); err != nil {
		return out, fmt.Errorf("failed to decode %T: %w", out, err)
	}
	return out, nil
}

// upperTicker uppercases a ticker. Casers keep state, so each call gets its own.
func upperTicker(s string) string {
	return cases.Upper(language.Und).String(s)
}

// NewAssetSpec builds an asset specification with a normalized ticker.
func NewAssetSpec(ticker, name, details string, precision uint8) (AssetSpec, error) {
	spec := AssetSpec{
		Ticker:    upperTicker(strings.TrimSpace(ticker)),
		Name:      name,
		Details:   details,
		Precision: precision,
	}
	return spec, spec.Validate()
}

func (s AssetSpec) Validate() error {
	if n := len(s.Ticker); n < 1 || n > 8 {
		return fmt.Errorf("ticker must be 1-8 characters, got %d", n)
	}
	if upperTicker(s.Ticker) != s.Ticker {
		return fmt.Errorf("ticker %q must be upper case", s.Ticker)
	}
	for i, r := range s.Ticker {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("ticker %q contains invalid character %q", s.Ticker, r)
		}
	}
	if n := len(s.Name); n < 1 || n > 40 {
		return fmt.Errorf("name must be 1-40 characters, got %d", n)
	}
	for _, r := range s.Name {
		if r < 0x20 || r > 0x7e {
			return fmt.Errorf("name contains non-printable character %q", r)
		}
	}
	if s.Details != "" && utf8.RuneCountInString(s.Details) > 255 {
		return fmt.Errorf("details exceed 255 characters")
	}
	if s.Precision > 18 {
		return fmt.Errorf("precision %d out of range", s.Precision)
	}
	return nil
}

// MediaTypeAllowed reports whether mediaType matches one of the allowed
// patterns. Matching is case-insensitive; "image/*" and "*/*" are wildcards.
func MediaTypeAllowed(allowed []string, mediaType string) bool {
	folder := cases.Fold()
	mt := folder.String(mediaType)
	major, _, ok := strings.Cut(mt, "/")
	if !ok {
		return false
	}
	for _, pattern := range allowed {
		p := folder.String(pattern)
		switch {
		case p == "*/*" || p == mt:
			return true
		case strings.HasSuffix(p, "/*") && strings.TrimSuffix(p, "/*") == major:
			return true
		}
	}
	return false
}
