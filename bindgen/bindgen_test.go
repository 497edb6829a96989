package bindgen

import (
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/errors"
)

const testAPI = `
version: "4.2.0"
classes:
  - name: Object
    methods:
      - name: get_class
        return: String
    signals:
      - name: script_changed
  - name: Node
    parent: Object
    methods:
      - name: add_child
        args: [{name: child, type: Node}, {name: type, type: int}]
        hash: 0xd3b4a9
      - name: get_child
        args: [{name: index, type: int}]
        return: Node
      - name: move
        args: [{name: x, type: float}, {name: y, type: float}, {name: z, type: float}, {name: w, type: float}]
      - name: _process
        virtual: true
        args: [{name: delta, type: float}]
      - name: _can_drop
        virtual: true
        args: [{name: at, type: int}, {name: data, type: Node}]
        return: bool
      - name: _input
        virtual: true
        args: [{name: a, type: int}, {name: b, type: int}, {name: c, type: int}, {name: d, type: int}]
    signals:
      - name: child_entered
        args: [{name: node, type: Node}]
      - name: moved
        args: [{name: a, type: int}, {name: b, type: int}, {name: c, type: int}, {name: d, type: int}]
  - name: Sprite
    parent: Node
    instantiable: false
  - name: Image
    methods:
      - name: get_data
        return: PackedByteArray
`

func generate(t *testing.T, opts Options) (string, *ast.File) {
	t.Helper()
	db, err := classdb.Parse([]byte(testAPI))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	src, err := Generate(db, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	f, err := parser.ParseFile(token.NewFileSet(), "api.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("generated source does not parse: %v\n%s", err, src)
	}
	return string(src), f
}

func decls(f *ast.File) []string {
	var out []string
	for _, d := range f.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil {
				name = typeName(d.Recv.List[0].Type) + "." + name
			}
			out = append(out, name)
		case *ast.GenDecl:
			for _, s := range d.Specs {
				if ts, ok := s.(*ast.TypeSpec); ok {
					out = append(out, "type "+ts.Name.Name)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func typeName(e ast.Expr) string {
	if id, ok := e.(*ast.Ident); ok {
		return id.Name
	}
	return "?"
}

func TestGenerate_Declarations(t *testing.T) {
	_, f := generate(t, Options{Package: "engineapi"})
	if f.Name.Name != "engineapi" {
		t.Errorf("package = %s", f.Name.Name)
	}

	want := []string{
		"AsImage", "AsNode", "AsObject", "AsSprite",
		"Image.GetData",
		"NewImage", "NewNode", "NewObject",
		"Node.AddChild", "Node.GetChild", "Node.Move",
		"Node.OnChildEntered", "Node.OnMoved",
		"Object.GetClass", "Object.OnScriptChanged",
		"RegisterNodeVirtuals",
		"type Image", "type Node", "type NodeCanDrop", "type NodeInput", "type NodeProcess",
		"type Object", "type Sprite",
	}
	if diff := cmp.Diff(want, decls(f)); diff != "" {
		t.Errorf("declarations (-want +got):\n%s", diff)
	}

	var imports []string
	for _, imp := range f.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		imports = append(imports, p)
	}
	wantImports := []string{
		"context",
		"github.com/wippyai/nativebind/bind",
		"github.com/wippyai/nativebind/dispatch",
		"github.com/wippyai/nativebind/runtime",
		"github.com/wippyai/nativebind/signal",
		"github.com/wippyai/nativebind/variant",
	}
	if diff := cmp.Diff(wantImports, imports); diff != "" {
		t.Errorf("imports (-want +got):\n%s", diff)
	}
}

func TestGenerate_Bodies(t *testing.T) {
	src, _ := generate(t, Options{})

	snippets := []string{
		"package api",
		`const APIVersion = "4.2.0"`,
		"type Node struct{ Object }",
		"type Object struct{ *runtime.Object }",
		"func AsSprite(o *runtime.Object) Sprite { return Sprite{Node{Object{o}}} }",
		`tokNodeAddChild = bind.Token{Class: "Node", Member: "add_child", Hash: 0xd3b4a9}`,
		"func (x Node) AddChild(ctx context.Context, child Node, type_ int64) error {",
		"return runtime.Void2(ctx, x.Native(), tokNodeAddChild, child, type_)",
		"o, err := runtime.Call1[*runtime.Object](ctx, x.Native(), tokNodeGetChild, index)",
		"return AsNode(o), err",
		"return runtime.VoidN(ctx, x.Native(), tokNodeMove, x_, y, z, w)",
		"return runtime.Call0[[]byte](ctx, x.Native(), tokImageGetData)",
		"Process(ctx context.Context, delta float64) error",
		`dispatch.Method1("_process", func(ctx context.Context, impl NodeProcess, delta float64) error {`,
		`dispatch.Func2("_can_drop", func(ctx context.Context, impl NodeCanDrop, at int64, data *runtime.Object) (bool, error) {`,
		"return impl.CanDrop(ctx, at, AsNode(data))",
		`Member: "_input",`,
		"d_, err := variant.ToContext[int64](ctx, args[3])",
		`return signal.Connect1(ctx, hub, ptr, "child_entered", func(ctx context.Context, node *runtime.Object) error {`,
		"return fn(ctx, AsNode(node))",
		`return signal.Connect0(ctx, hub, ptr, "script_changed", func(ctx context.Context) error {`,
		`return x.Native().Connect(ctx, "moved", func(ctx context.Context, args []variant.Variant) error {`,
	}
	for _, s := range snippets {
		if !strings.Contains(src, s) {
			t.Errorf("output lacks %q", s)
		}
	}
	if strings.Contains(src, "func NewSprite") {
		t.Error("constructor generated for a non-instantiable class")
	}
}

func TestGenerate_ClassFilter(t *testing.T) {
	src, f := generate(t, Options{Classes: []string{"Image"}})
	want := []string{"AsImage", "Image.GetData", "NewImage", "type Image"}
	if diff := cmp.Diff(want, decls(f)); diff != "" {
		t.Errorf("declarations (-want +got):\n%s", diff)
	}
	for _, pkg := range []string{"dispatch", "signal", "variant"} {
		if strings.Contains(src, "nativebind/"+pkg+`"`) {
			t.Errorf("unused import of %s", pkg)
		}
	}

	// ancestors come along with the selected class
	_, f = generate(t, Options{Classes: []string{"Sprite"}})
	got := decls(f)
	for _, name := range []string{"type Object", "type Node", "type Sprite"} {
		if !contains(got, name) {
			t.Errorf("missing %s in %v", name, got)
		}
	}
	if contains(got, "type Image") {
		t.Error("unrelated class generated")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestGenerate_Errors(t *testing.T) {
	db, err := classdb.Parse([]byte(testAPI))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		db   *classdb.DB
		opts Options
		want errors.Kind
	}{
		{"nil db", nil, Options{}, errors.KindNilPointer},
		{"bad package", db, Options{Package: "my-api"}, errors.KindInvalidInput},
		{"unknown class", db, Options{Classes: []string{"Missing"}}, errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.db, tt.opts)
			if got := errors.KindOf(err); got != tt.want {
				t.Errorf("kind = %q, want %q (%v)", got, tt.want, err)
			}
		})
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		in, exported, param string
	}{
		{"get_child", "GetChild", "getChild"},
		{"_process", "Process", "process"},
		{"type", "Type", "type_"},
		{"string", "String", "string_"},
		{"ctx", "Ctx", "ctx_"},
		{"3d", "X3d", "p3d"},
		{"", "X", "arg2"},
	}
	for _, tt := range tests {
		if got := exported(tt.in); got != tt.exported {
			t.Errorf("exported(%q) = %q, want %q", tt.in, got, tt.exported)
		}
		if got := identifier(tt.in, 2); got != tt.param {
			t.Errorf("identifier(%q) = %q, want %q", tt.in, got, tt.param)
		}
	}
}
