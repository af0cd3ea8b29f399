// Package defaults ships the documents a fresh installation starts from.
// They are authored in CUE and decoded at boot; a decode failure is a
// packaging bug and fatal to startup.
package defaults

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/hearthhq/hearth/internal/settings"
)

//go:embed defaults.cue
var source string

// Settings returns the default settings document.
func Settings() (settings.Tree, error) {
	return document("settings")
}

// Household returns the default household document.
func Household() (settings.Tree, error) {
	return document("household")
}

func document(name string) (settings.Tree, error) {
	v := cuecontext.New().CompileString(source, cue.Filename("defaults.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compiling defaults: %w", err)
	}
	doc := v.LookupPath(cue.ParsePath(name))
	if err := doc.Err(); err != nil {
		return nil, fmt.Errorf("looking up %s defaults: %w", name, err)
	}
	// Round-trip through JSON so leaf types match what the rest of the
	// system sees on the wire.
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding %s defaults: %w", name, err)
	}
	var tree settings.Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decoding %s defaults: %w", name, err)
	}
	return tree, nil
}
