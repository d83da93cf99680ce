package iface

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a structured interface model in YAML or JSON form and checks it.
func Load(r io.Reader) (*Interface, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read interface: %w", err)
	}
	return Parse(data)
}

// LoadFile reads an interface model from a file.
func LoadFile(path string) (*Interface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read interface file: %w", err)
	}
	ifc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ifc, nil
}

// Parse decodes an interface model. JSON is accepted as a subset of YAML.
func Parse(data []byte) (*Interface, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse interface: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert interface: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	ifc := &Interface{}
	if err := dec.Decode(ifc); err != nil {
		return nil, fmt.Errorf("failed to decode interface: %w", err)
	}
	if err := ifc.Check(); err != nil {
		return nil, err
	}
	return ifc, nil
}

// Marshal encodes the interface model as YAML.
func Marshal(ifc *Interface) ([]byte, error) {
	raw, err := json.Marshal(ifc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode interface: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert interface: %w", err)
	}
	return yaml.Marshal(doc)
}
