// Package catalog stores the protocol documents a session's protocol pointer
// can name. Documents are markdown files read by workers; hive never
// interprets their content.
package catalog

import (
	"errors"
	"io/fs"
	"strings"

	"hive/pkg/fsroot"
	"hive/pkg/protocol"
)

const ext = ".md"

// Catalog is a directory of <name>.md protocol documents.
type Catalog struct {
	Dir  string
	root *fsroot.Root
}

// New returns a Catalog over dir.
func New(dir string) *Catalog {
	return &Catalog{Dir: dir, root: fsroot.New(dir)}
}

// List returns the names of all protocols, sorted, without the .md suffix.
func (c *Catalog) List() ([]string, error) {
	files, err := c.root.ListDir(".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range files {
		if name, ok := strings.CutSuffix(f, ext); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Get returns the content of a protocol document.
func (c *Catalog) Get(name string) (string, error) {
	if err := protocol.ValidateName("protocol", name); err != nil {
		return "", err
	}
	data, err := c.root.ReadFile(name + ext)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &protocol.NotFoundError{Kind: "protocol", Name: name}
		}
		return "", err
	}
	return string(data), nil
}

// Exists reports whether a protocol document is present.
func (c *Catalog) Exists(name string) (bool, error) {
	if err := protocol.ValidateName("protocol", name); err != nil {
		return false, err
	}
	return c.root.Exists(name + ext)
}

// Add writes or replaces a protocol document.
func (c *Catalog) Add(name, content string) error {
	if err := protocol.ValidateName("protocol", name); err != nil {
		return err
	}
	return c.root.AtomicReplace(name+ext, []byte(content))
}
