package models

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// ErrUnknownClass is returned when a class index or name is not in the dictionary.
var ErrUnknownClass = errors.New("unknown class")

// ClassDictionary maps the identities the classifier knows to their output indexes.
//
// A dictionary is loaded once and never modified, so it is safe to share between requests.
type ClassDictionary struct {
	// nameToIdx for lookup by name, also served as is in responses.
	nameToIdx map[string]int
	// names ordered by index.
	names []string
}

// NewClassDictionary builds a dictionary from a name -> index map.
//
// Indexes must be unique and cover 0..len(m)-1.
//
// Arguments:
//   - m: The name -> index map. It is copied.
//
// Returns:
//   - *ClassDictionary: The dictionary.
//   - error: An error if the map is empty or the indexes are not contiguous from 0.
func NewClassDictionary(m map[string]int) (*ClassDictionary, error) {
	if len(m) == 0 {
		return nil, errors.New("class dictionary is empty")
	}

	d := &ClassDictionary{
		nameToIdx: make(map[string]int, len(m)),
		names:     make([]string, len(m)),
	}
	for name, idx := range m {
		if idx < 0 || idx >= len(m) {
			return nil, errors.Errorf("class %q has index %d, want 0..%d", name, idx, len(m)-1)
		}
		if d.names[idx] != "" {
			return nil, errors.Errorf("classes %q and %q share index %d", d.names[idx], name, idx)
		}
		d.names[idx] = name
		d.nameToIdx[name] = idx
	}
	return d, nil
}

// LoadClassDictionary reads a JSON object of {"name": index} from path.
//
// Arguments:
//   - path: The JSON file.
//
// Returns:
//   - *ClassDictionary: The dictionary.
//   - error: An error if the file is missing, malformed, or has invalid indexes.
func LoadClassDictionary(path string) (*ClassDictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read class dictionary %s", path)
	}

	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parse class dictionary %s", path)
	}

	d, err := NewClassDictionary(m)
	if err != nil {
		return nil, errors.Wrapf(err, "class dictionary %s", path)
	}
	return d, nil
}

// Name returns the class name for an index.
func (d *ClassDictionary) Name(idx int) (string, bool) {
	if idx < 0 || idx >= len(d.names) {
		return "", false
	}
	return d.names[idx], true
}

// Index returns the index of a class name.
func (d *ClassDictionary) Index(name string) (int, bool) {
	idx, ok := d.nameToIdx[name]
	return idx, ok
}

// Len returns the number of classes.
func (d *ClassDictionary) Len() int {
	return len(d.names)
}

// Map returns the name -> index map. The map is shared and must not be modified.
func (d *ClassDictionary) Map() map[string]int {
	return d.nameToIdx
}

// Names returns the class names ordered by index.
func (d *ClassDictionary) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Resolve maps a prediction to its class name.
//
// Returns:
//   - string: The class name.
//   - error: ErrUnknownClass if the predicted index is outside the dictionary.
func (d *ClassDictionary) Resolve(p Prediction) (string, error) {
	name, ok := d.Name(p.Index)
	if !ok {
		return "", errors.Wrapf(ErrUnknownClass, "index %d of %d classes", p.Index, d.Len())
	}
	return name, nil
}
