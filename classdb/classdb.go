package classdb

import (
	"slices"
	"sort"
	"strings"

	"github.com/wippyai/nativebind/variant"
)

// Arg is a typed parameter or return value. Class is set when Type is
// Object and the description named a class.
type Arg struct {
	Name  string
	Class string
	Type  variant.Type
}

// TypeName returns the class name for typed objects and the variant type
// name otherwise.
func (a Arg) TypeName() string {
	if a.Class != "" {
		return a.Class
	}
	return a.Type.String()
}

// Method is a native member. Virtual methods are implemented on the
// managed side and called by the engine.
type Method struct {
	Name    string
	Class   string
	Args    []Arg
	Return  Arg
	Hash    uint64
	Virtual bool
	Const   bool
}

func (m *Method) Arity() int { return len(m.Args) }

// Signature returns the canonical signature text hashed by SignatureHash.
func (m *Method) Signature() string {
	var b strings.Builder
	b.WriteString(m.Return.TypeName())
	b.WriteByte(' ')
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, a := range m.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.TypeName())
	}
	b.WriteByte(')')
	if m.Const {
		b.WriteString(" const")
	}
	if m.Virtual {
		b.WriteString(" virtual")
	}
	return b.String()
}

// Signal is a native event with positional arguments.
type Signal struct {
	Name  string
	Class string
	Args  []Arg
}

func (s *Signal) Arity() int { return len(s.Args) }

// Class is a native class. Lookups walk the parent chain.
type Class struct {
	db           *DB
	methodIndex  map[string]*Method
	signalIndex  map[string]*Signal
	Name         string
	Parent       string
	methods      []*Method
	signals      []*Signal
	RefCounted   bool
	Instantiable bool
}

// Base returns the parent class, nil for a root class.
func (c *Class) Base() *Class {
	if c.Parent == "" {
		return nil
	}
	return c.db.classes[c.Parent]
}

// Method finds a method on c or its ancestors.
func (c *Class) Method(name string) (*Method, bool) {
	for k := c; k != nil; k = k.Base() {
		if m, ok := k.methodIndex[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// Signal finds a signal on c or its ancestors.
func (c *Class) Signal(name string) (*Signal, bool) {
	for k := c; k != nil; k = k.Base() {
		if s, ok := k.signalIndex[name]; ok {
			return s, true
		}
	}
	return nil, false
}

// IsA reports whether c is name or inherits from it.
func (c *Class) IsA(name string) bool {
	for k := c; k != nil; k = k.Base() {
		if k.Name == name {
			return true
		}
	}
	return false
}

// OwnMethods returns the methods declared on c itself, in document order.
func (c *Class) OwnMethods() []*Method {
	return slices.Clone(c.methods)
}

// Virtuals returns the virtual methods declared on c itself.
func (c *Class) Virtuals() []*Method {
	var out []*Method
	for _, m := range c.methods {
		if m.Virtual {
			out = append(out, m)
		}
	}
	return out
}

// Signals returns the signals declared on c itself.
func (c *Class) Signals() []*Signal {
	return slices.Clone(c.signals)
}

// DB is a validated API description. It is immutable after loading and
// safe for concurrent use.
type DB struct {
	classes map[string]*Class
	Version string
}

// Class returns the named class.
func (db *DB) Class(name string) (*Class, bool) {
	c, ok := db.classes[name]
	return c, ok
}

// Classes returns all classes sorted by name.
func (db *DB) Classes() []*Class {
	out := make([]*Class, 0, len(db.classes))
	for _, c := range db.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ancestors returns name followed by its ancestors, root last. Unknown
// classes return nil.
func (db *DB) Ancestors(name string) []string {
	c, ok := db.classes[name]
	if !ok {
		return nil
	}
	var out []string
	for k := c; k != nil; k = k.Base() {
		out = append(out, k.Name)
	}
	return out
}

// Len returns the number of classes.
func (db *DB) Len() int {
	return len(db.classes)
}
