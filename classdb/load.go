package classdb

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

type document struct {
	Version string     `yaml:"version"`
	Classes []classDoc `yaml:"classes"`
}

type classDoc struct {
	Instantiable *bool       `yaml:"instantiable"`
	Name         string      `yaml:"name"`
	Parent       string      `yaml:"parent"`
	Methods      []methodDoc `yaml:"methods"`
	Signals      []signalDoc `yaml:"signals"`
	RefCounted   bool        `yaml:"refcounted"`
}

type methodDoc struct {
	Name    string   `yaml:"name"`
	Return  string   `yaml:"return"`
	Args    []argDoc `yaml:"args"`
	Hash    uint64   `yaml:"hash"`
	Virtual bool     `yaml:"virtual"`
	Const   bool     `yaml:"const"`
}

type signalDoc struct {
	Name string   `yaml:"name"`
	Args []argDoc `yaml:"args"`
}

type argDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// LoadFile reads a description from path.
func LoadFile(path string) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, path)
	}
	return Parse(data)
}

// Load reads a description from r.
func Load(r io.Reader) (*DB, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "read description")
	}
	return Parse(data)
}

// Parse decodes and validates a YAML or JSON description.
func Parse(data []byte) (*DB, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "decode description")
	}
	return build(&doc)
}

func build(doc *document) (*DB, error) {
	db := &DB{
		Version: doc.Version,
		classes: make(map[string]*Class, len(doc.Classes)),
	}

	for i := range doc.Classes {
		cd := &doc.Classes[i]
		if cd.Name == "" {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Path("classes").Detail("class #%d has no name", i).Build()
		}
		if _, dup := db.classes[cd.Name]; dup {
			return nil, errors.Duplicate(errors.PhaseLoad, "class", cd.Name)
		}
		db.classes[cd.Name] = &Class{
			db:           db,
			Name:         cd.Name,
			Parent:       cd.Parent,
			RefCounted:   cd.RefCounted,
			Instantiable: cd.Instantiable == nil || *cd.Instantiable,
			methodIndex:  make(map[string]*Method),
			signalIndex:  make(map[string]*Signal),
		}
	}

	for i := range doc.Classes {
		cd := &doc.Classes[i]
		c := db.classes[cd.Name]
		if cd.Parent != "" {
			if _, ok := db.classes[cd.Parent]; !ok {
				return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
					Path(cd.Name).Detail("parent class %q not found", cd.Parent).Build()
			}
		}
		for _, md := range cd.Methods {
			m, err := db.method(c.Name, md)
			if err != nil {
				return nil, err
			}
			if err := c.addMember(m.Name); err != nil {
				return nil, err
			}
			c.methods = append(c.methods, m)
			c.methodIndex[m.Name] = m
		}
		for _, sd := range cd.Signals {
			s, err := db.signal(c.Name, sd)
			if err != nil {
				return nil, err
			}
			if err := c.addMember(s.Name); err != nil {
				return nil, err
			}
			c.signals = append(c.signals, s)
			c.signalIndex[s.Name] = s
		}
	}

	if err := db.checkCycles(); err != nil {
		return nil, err
	}
	return db, nil
}

func (c *Class) addMember(name string) error {
	if name == "" {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Path(c.Name).Detail("member without a name").Build()
	}
	_, isMethod := c.methodIndex[name]
	_, isSignal := c.signalIndex[name]
	if isMethod || isSignal {
		return errors.Duplicate(errors.PhaseLoad, "member", c.Name+"."+name)
	}
	return nil
}

func (db *DB) method(class string, md methodDoc) (*Method, error) {
	m := &Method{
		Name:    md.Name,
		Class:   class,
		Virtual: md.Virtual,
		Const:   md.Const,
		Hash:    md.Hash,
	}
	var err error
	m.Args, err = db.args(md.Args, class, md.Name)
	if err != nil {
		return nil, err
	}
	m.Return, err = db.resolveType(md.Return, class, md.Name, "return")
	if err != nil {
		return nil, err
	}
	if m.Hash == 0 {
		m.Hash = SignatureHash(m)
	}
	return m, nil
}

func (db *DB) signal(class string, sd signalDoc) (*Signal, error) {
	args, err := db.args(sd.Args, class, sd.Name)
	if err != nil {
		return nil, err
	}
	return &Signal{Name: sd.Name, Class: class, Args: args}, nil
}

func (db *DB) args(docs []argDoc, class, member string) ([]Arg, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	out := make([]Arg, len(docs))
	for i, ad := range docs {
		if ad.Type == "" {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Path(class, member, ad.Name).Detail("argument %d has no type", i).Build()
		}
		a, err := db.resolveType(ad.Type, class, member, ad.Name)
		if err != nil {
			return nil, err
		}
		a.Name = ad.Name
		out[i] = a
	}
	return out, nil
}

// resolveType maps a type name to an Arg. Class names become typed objects.
func (db *DB) resolveType(name, class, member, field string) (Arg, error) {
	if t, err := variant.ParseType(name); err == nil {
		return Arg{Type: t}, nil
	}
	if _, ok := db.classes[name]; ok {
		return Arg{Type: variant.Object, Class: name}, nil
	}
	return Arg{}, errors.New(errors.PhaseLoad, errors.KindNotFound).
		Path(class, member, field).Detail("unknown type %q", name).Build()
}

func (db *DB) checkCycles() error {
	for name := range db.classes {
		seen := make(map[string]bool)
		for k := db.classes[name]; k != nil; k = k.Base() {
			if seen[k.Name] {
				return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
					Path(name).Detail("inheritance cycle through %q", k.Name).Build()
			}
			seen[k.Name] = true
		}
	}
	return nil
}
