package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates the YAML config file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	file, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return file, nil
}

// LoadFromReader decodes and validates a config document from r.
func LoadFromReader(r io.Reader) (*File, error) {
	file := &File{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(file); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	for i, g := range file.Groups {
		file.Groups[i] = g.normalized()
	}

	if err := Validate(file); err != nil {
		return nil, err
	}
	return file, nil
}

// Validate checks cross-field consistency and returns a joined error listing
// every problem found.
func Validate(file *File) error {
	var errs []error

	seenGroups := make(map[string]int, len(file.Groups))
	for i, g := range file.Groups {
		prefix := fmt.Sprintf("groups[%d]", i)
		if g.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seenGroups[g.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q duplicates groups[%d]", prefix, g.Name, prev))
		} else {
			seenGroups[g.Name] = i
		}
		if g.Output != "file" && g.Output != "alsa" {
			errs = append(errs, fmt.Errorf("%s.output %q must be \"file\" or \"alsa\"", prefix, g.Output))
		}
		if g.Output == "alsa" && g.Device == "" {
			errs = append(errs, fmt.Errorf("%s.device is required when output is \"alsa\"", prefix))
		}
	}

	seenGUIDs := make(map[string]int, len(file.Clients))
	for i, c := range file.Clients {
		prefix := fmt.Sprintf("clients[%d]", i)
		if c.GUID == "" {
			errs = append(errs, fmt.Errorf("%s.guid is required", prefix))
			continue
		}
		if prev, ok := seenGUIDs[c.GUID]; ok {
			errs = append(errs, fmt.Errorf("%s.guid %q duplicates clients[%d]", prefix, c.GUID, prev))
		} else {
			seenGUIDs[c.GUID] = i
		}
		if c.Group != "" {
			if _, ok := seenGroups[c.Group]; !ok {
				errs = append(errs, fmt.Errorf("%s.group %q does not match any configured group", prefix, c.Group))
			}
		}
	}

	return errors.Join(errs...)
}
