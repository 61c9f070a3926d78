// Package schemas embeds the built-in Avro schemas for common FHIR R4
// resources.
//
// Each file is named after the resource type it describes:
//
//	data, err := schemas.ReadFile("Patient")
package schemas

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Ext is the file extension of schema files.
const Ext = ".avsc"

//go:embed *.avsc
var files embed.FS

// FS returns the embedded schema files.
func FS() fs.FS { return files }

// Names lists the resource types with a built-in schema.
func Names() []string {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Ext) {
			names = append(names, strings.TrimSuffix(e.Name(), Ext))
		}
	}
	sort.Strings(names)
	return names
}

// ReadFile returns the schema text for a resource type.
func ReadFile(name string) ([]byte, error) {
	data, err := files.ReadFile(name + Ext)
	if err != nil {
		return nil, fmt.Errorf("no built-in schema for %s: %w", name, err)
	}
	return data, nil
}

// Has reports whether a built-in schema exists for the resource type.
func Has(name string) bool {
	_, err := fs.Stat(files, name+Ext)
	return err == nil
}
