// Package iniwriter generates the decoder app's per-instance
// configuration file. spec.md §6 treats this as opaque text outside any
// wire protocol, so this package sticks to the teacher's own text-builder
// style (seen in decoder_spots_log.go/cwskimmer_spots_api.go's
// strings.Builder-based CSV writers) rather than reaching for an INI
// library -- no pack repo imports one, and the teacher's own config
// output code never does either.
package iniwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Section is one [Name] block of ordered key=value pairs. A slice of
// pairs rather than a map keeps key order stable across writes, which
// matters for humans diffing the generated file.
type Section struct {
	Name string
	Keys []KV
}

// KV is one ordered key=value pair within a Section.
type KV struct {
	Key   string
	Value string
}

// Document is an ordered set of Sections.
type Document struct {
	Sections []Section
}

// Set adds or replaces key within section, creating the section if
// absent. Existing sections keep their position; new sections are
// appended in Set's call order.
func (d *Document) Set(section, key, value string) {
	for i := range d.Sections {
		if d.Sections[i].Name != section {
			continue
		}
		for j := range d.Sections[i].Keys {
			if d.Sections[i].Keys[j].Key == key {
				d.Sections[i].Keys[j].Value = value
				return
			}
		}
		d.Sections[i].Keys = append(d.Sections[i].Keys, KV{Key: key, Value: value})
		return
	}
	d.Sections = append(d.Sections, Section{Name: section, Keys: []KV{{Key: key, Value: value}}})
}

// Render produces the `[Section]\nkey=value\n` text.
func (d *Document) Render() string {
	var b strings.Builder
	for _, sec := range d.Sections {
		b.WriteString("[" + sec.Name + "]\n")
		for _, kv := range sec.Keys {
			b.WriteString(kv.Key)
			b.WriteString("=")
			b.WriteString(kv.Value)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// InstanceConfig carries everything the coordinator knows about an
// instance that the generated file needs (spec.md §6's field list).
type InstanceConfig struct {
	RigName        string
	CATNetworkPort int
	UDPServerPort  int
	UDPServerHost  string
	SoundInName    string
	SoundOutName   string
	WideGraphStart int
	WideGraphEnd   int
}

// Render builds the decoder app's per-instance file per spec.md §6:
// sectioned key=value text naming Rig, CATNetworkPort, PTTMethod,
// SplitMode, UDPServerPort, UDPServer, AcceptUDPRequests, SoundInName,
// SoundOutName, and wide-graph parameters.
func Render(c InstanceConfig) string {
	doc := Document{}
	doc.Set("Configuration", "Rig", c.RigName)
	doc.Set("Configuration", "CATNetworkPort", fmt.Sprintf("%d", c.CATNetworkPort))
	doc.Set("Configuration", "PTTMethod", "CAT")
	doc.Set("Configuration", "SplitMode", "Rig")
	doc.Set("Configuration", "UDPServerPort", fmt.Sprintf("%d", c.UDPServerPort))
	doc.Set("Configuration", "UDPServer", c.UDPServerHost)
	doc.Set("Configuration", "AcceptUDPRequests", "true")
	doc.Set("Configuration", "SoundInName", c.SoundInName)
	doc.Set("Configuration", "SoundOutName", c.SoundOutName)
	if c.WideGraphStart != 0 || c.WideGraphEnd != 0 {
		doc.Set("WideGraph", "start", fmt.Sprintf("%d", c.WideGraphStart))
		doc.Set("WideGraph", "end", fmt.Sprintf("%d", c.WideGraphEnd))
	}
	return doc.Render()
}

// WriteFile renders and persists c to path, creating parent directories
// as needed.
func WriteFile(path string, c InstanceConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(Render(c)), 0644)
}

// Merge overlays extra key=value pairs (grouped by section name) onto a
// base InstanceConfig's rendering before writing, for callers that need
// to pass through decoder-app-specific keys this package doesn't model.
// Sections are written in sorted order after the base Configuration/
// WideGraph sections so merges are deterministic across calls.
func Merge(base InstanceConfig, extra map[string]map[string]string) string {
	doc := Document{}
	for _, line := range strings.Split(Render(base), "\n\n") {
		parseSectionInto(&doc, line)
	}
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		keys := extra[name]
		keyNames := make([]string, 0, len(keys))
		for k := range keys {
			keyNames = append(keyNames, k)
		}
		sort.Strings(keyNames)
		for _, k := range keyNames {
			doc.Set(name, k, keys[k])
		}
	}
	return doc.Render()
}

func parseSectionInto(doc *Document, block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	lines := strings.Split(block, "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "[") {
		return
	}
	name := strings.TrimSuffix(strings.TrimPrefix(lines[0], "["), "]")
	for _, line := range lines[1:] {
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		doc.Set(name, line[:eq], line[eq+1:])
	}
}
