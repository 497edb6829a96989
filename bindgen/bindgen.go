// Package bindgen generates typed Go wrappers from an API description.
//
// For every class the output has a wrapper struct embedding the wrapper of
// its parent, the bind tokens of its methods, one typed method per native
// method, an interface per virtual method with a Register<Class>Virtuals
// function, and On<Signal> helpers.
package bindgen

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"go/types"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

const modulePath = "github.com/wippyai/nativebind"

// Options controls generation.
type Options struct {
	// Package is the package name of the output. Defaults to "api".
	Package string

	// Classes limits the output to these classes and their ancestors.
	// Empty means every class.
	Classes []string
}

// Generate returns gofmt'd Go source for db.
func Generate(db *classdb.DB, opts Options) ([]byte, error) {
	if db == nil {
		return nil, errors.NilPointer(errors.PhaseGenerate, nil, "*classdb.DB")
	}
	if opts.Package == "" {
		opts.Package = "api"
	}
	if !token.IsIdentifier(opts.Package) {
		return nil, errors.InvalidInput(errors.PhaseGenerate, fmt.Sprintf("invalid package name %q", opts.Package))
	}

	g := &generator{db: db, selected: make(map[string]bool)}
	if err := g.selectClasses(opts.Classes); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	for _, c := range db.Classes() {
		if !g.selected[c.Name] {
			continue
		}
		if err := classTmpl.Execute(&body, g.class(c)); err != nil {
			return nil, errors.Wrap(errors.PhaseGenerate, errors.KindInvalidData, err, c.Name)
		}
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "// Code generated by bindctl; DO NOT EDIT.\n\npackage %s\n\n", opts.Package)
	out.WriteString(imports(body.String(), db.Version))
	out.Write(body.Bytes())

	src, err := format.Source(out.Bytes())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindInvalidData, err, "gofmt")
	}
	return src, nil
}

// imports lists the packages body refers to.
func imports(body, version string) string {
	pkgs := []struct{ name, path string }{
		{"context", "context"},
		{"bind", modulePath + "/bind"},
		{"dispatch", modulePath + "/dispatch"},
		{"runtime", modulePath + "/runtime"},
		{"signal", modulePath + "/signal"},
		{"variant", modulePath + "/variant"},
	}
	var b strings.Builder
	b.WriteString("import (\n")
	for _, p := range pkgs {
		if regexp.MustCompile(`(^|[^\w.])` + p.name + `\.`).MatchString(body) {
			fmt.Fprintf(&b, "\t%q\n", p.path)
		}
	}
	b.WriteString(")\n\n")
	if version != "" {
		fmt.Fprintf(&b, "// APIVersion is the version of the description the wrappers were generated from.\nconst APIVersion = %q\n\n", version)
	}
	return b.String()
}

type generator struct {
	db       *classdb.DB
	selected map[string]bool
}

func (g *generator) selectClasses(names []string) error {
	if len(names) == 0 {
		for _, c := range g.db.Classes() {
			g.selected[c.Name] = true
		}
		return nil
	}
	for _, name := range names {
		c, ok := g.db.Class(name)
		if !ok {
			return errors.NotFound(errors.PhaseGenerate, "class", name)
		}
		for ; c != nil; c = c.Base() {
			g.selected[c.Name] = true
		}
	}
	return nil
}

type classData struct {
	Name         string
	GoName       string
	Embed        string
	Wrap         string
	Methods      []methodData
	Virtuals     []virtualData
	Signals      []signalData
	Instantiable bool
}

type param struct {
	Name       string
	Type       string
	DecodeType string
	Arg        string
}

type methodData struct {
	GoName     string
	Tok        string
	Class      string
	Member     string
	Thunk      string
	Result     string
	ResultWrap string
	Params     []param
	Hash       uint64
}

type virtualData struct {
	Iface  string
	GoName string
	Member string
	Class  string
	Helper string
	Result string
	Params []param
}

type signalData struct {
	GoName string
	Member string
	Class  string
	Params []param
}

func (g *generator) class(c *classdb.Class) classData {
	cd := classData{
		Name:         c.Name,
		GoName:       exported(c.Name),
		Embed:        "*runtime.Object",
		Instantiable: c.Instantiable,
	}
	field := "Object"
	if p := c.Base(); p != nil {
		cd.Embed = exported(p.Name)
		field = cd.Embed
	}
	cd.Wrap = g.wrapExpr(c)

	// names the wrapper already uses
	used := map[string]bool{field: true, "Native": true, "NativePtr": true}
	name := func(base string) string {
		n := base
		for used[n] {
			n += "_"
		}
		used[n] = true
		return n
	}

	for _, m := range c.OwnMethods() {
		if m.Virtual {
			cd.Virtuals = append(cd.Virtuals, g.virtual(cd.GoName, m))
			continue
		}
		md := methodData{
			GoName: name(exported(m.Name)),
			Class:  m.Class,
			Member: m.Name,
			Hash:   m.Hash,
			Params: g.params(m.Args),
		}
		md.Tok = "tok" + cd.GoName + exported(m.Name)
		md.Result, md.ResultWrap = g.goType(m.Return)
		md.Thunk = thunk(len(m.Args), m.Return.Type != variant.Nil, md.Result, md.ResultWrap)
		cd.Methods = append(cd.Methods, md)
	}
	for _, s := range c.Signals() {
		cd.Signals = append(cd.Signals, signalData{
			GoName: name("On" + exported(s.Name)),
			Member: s.Name,
			Class:  c.Name,
			Params: g.params(s.Args),
		})
	}
	return cd
}

// wrapExpr builds the wrapper literal of c around o.
func (g *generator) wrapExpr(c *classdb.Class) string {
	p := c.Base()
	if p == nil {
		return exported(c.Name) + "{o}"
	}
	return exported(c.Name) + "{" + g.wrapExpr(p) + "}"
}

func (g *generator) virtual(class string, m *classdb.Method) virtualData {
	v := virtualData{
		Iface:  class + exported(m.Name),
		GoName: exported(m.Name),
		Member: m.Name,
		Class:  m.Class,
		Params: g.params(m.Args),
	}
	if m.Return.Type != variant.Nil {
		v.Result, _ = g.goType(m.Return)
	}
	n := len(m.Args)
	switch {
	case v.Result == "" && n <= 3:
		v.Helper = fmt.Sprintf("Method%d", n)
	case v.Result != "" && n <= 2:
		v.Helper = fmt.Sprintf("Func%d", n)
	}
	return v
}

func (g *generator) params(args []classdb.Arg) []param {
	out := make([]param, len(args))
	seen := make(map[string]bool)
	for i, a := range args {
		n := identifier(a.Name, i)
		for seen[n] {
			n += "_"
		}
		seen[n] = true

		typ, wrap := g.goType(a)
		p := param{Name: n, Type: typ, DecodeType: typ, Arg: n}
		if wrap != "" {
			p.DecodeType = "*runtime.Object"
			p.Arg = "As" + wrap + "(" + n + ")"
		}
		out[i] = p
	}
	return out
}

// goType returns the Go type for a, and the wrapper name when a is an
// object of a generated class.
func (g *generator) goType(a classdb.Arg) (string, string) {
	switch a.Type {
	case variant.Nil:
		return "", ""
	case variant.Bool:
		return "bool", ""
	case variant.Int:
		return "int64", ""
	case variant.Float:
		return "float64", ""
	case variant.String:
		return "string", ""
	case variant.Object:
		if a.Class != "" && g.selected[a.Class] {
			w := exported(a.Class)
			return w, w
		}
		return "*runtime.Object", ""
	case variant.Array:
		return "[]variant.Variant", ""
	case variant.PackedBytes:
		return "[]byte", ""
	case variant.PackedInt64s:
		return "[]int64", ""
	case variant.PackedFloat64s:
		return "[]float64", ""
	case variant.PackedStrings:
		return "[]string", ""
	}
	return "variant.Variant", ""
}

func thunk(n int, hasResult bool, result, wrap string) string {
	if wrap != "" {
		result = "*runtime.Object"
	}
	switch {
	case !hasResult && n <= 3:
		return fmt.Sprintf("Void%d", n)
	case !hasResult:
		return "VoidN"
	case n <= 3:
		return fmt.Sprintf("Call%d[%s]", n, result)
	}
	return "CallN[" + result + "]"
}

// reserved names used by generated bodies.
var reserved = []string{"ctx", "x", "o", "fn", "err", "impl", "self", "args", "d", "hub", "ptr", "r",
	"bind", "context", "dispatch", "runtime", "signal", "variant"}

// identifier turns a description argument name into a parameter name.
func identifier(name string, i int) string {
	n := camel(name, false)
	if n == "" {
		return fmt.Sprintf("arg%d", i)
	}
	if !unicode.IsLetter(rune(n[0])) {
		n = "p" + n
	}
	if token.IsKeyword(n) || types.Universe.Lookup(n) != nil || slices.Contains(reserved, n) {
		n += "_"
	}
	return n
}

// exported converts snake_case names to exported CamelCase. Leading
// underscores of virtual names are dropped.
func exported(name string) string {
	n := camel(name, true)
	if n == "" || !unicode.IsLetter(rune(n[0])) {
		n = "X" + n
	}
	return n
}

func camel(name string, upper bool) string {
	var b strings.Builder
	next := upper
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			next = b.Len() > 0 || upper
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if next {
				r = unicode.ToUpper(r)
			}
			b.WriteRune(r)
			next = false
		}
	}
	return b.String()
}
