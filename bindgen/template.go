package bindgen

import (
	"text/template"
)

var classTmpl = template.Must(template.New("class").Parse(`
// {{.GoName}} wraps the native {{.Name}} class.
type {{.GoName}} struct{ {{.Embed}} }

// As{{.GoName}} wraps o, which must be a {{.Name}} or derive from it.
func As{{.GoName}}(o *runtime.Object) {{.GoName}} { return {{.Wrap}} }
{{if .Instantiable}}
// New{{.GoName}} constructs a {{.Name}}. Virtual calls are dispatched to self.
func New{{.GoName}}(ctx context.Context, rt *runtime.Runtime, self any) ({{.GoName}}, error) {
	o, err := rt.New(ctx, "{{.Name}}", self)
	return As{{.GoName}}(o), err
}
{{end}}
{{- if .Methods}}
var (
{{- range .Methods}}
	{{.Tok}} = bind.Token{Class: "{{.Class}}", Member: "{{.Member}}", Hash: {{printf "%#x" .Hash}}}
{{- end}}
)
{{end}}
{{- range .Methods}}
// {{.GoName}} calls {{.Class}}.{{.Member}}.
func (x {{$.GoName}}) {{.GoName}}(ctx context.Context{{range .Params}}, {{.Name}} {{.Type}}{{end}}) {{if .Result}}({{.Result}}, error){{else}}error{{end}} {
{{- if .ResultWrap}}
	o, err := runtime.{{.Thunk}}(ctx, x.Native(), {{.Tok}}{{range .Params}}, {{.Name}}{{end}})
	return As{{.ResultWrap}}(o), err
{{- else}}
	return runtime.{{.Thunk}}(ctx, x.Native(), {{.Tok}}{{range .Params}}, {{.Name}}{{end}})
{{- end}}
}
{{end}}
{{- range .Virtuals}}
// {{.Iface}} is implemented by values overriding {{.Class}}.{{.Member}}.
type {{.Iface}} interface {
	{{.GoName}}(ctx context.Context{{range .Params}}, {{.Name}} {{.Type}}{{end}}) {{if .Result}}({{.Result}}, error){{else}}error{{end}}
}
{{end}}
{{- if .Virtuals}}
// Register{{.GoName}}Virtuals installs the {{.Name}} overrides on d.
func Register{{.GoName}}Virtuals(d *dispatch.Dispatcher) error {
	return d.Register("{{.Name}}",
{{- range .Virtuals}}
{{- if .Helper}}
		dispatch.{{.Helper}}("{{.Member}}", func(ctx context.Context, impl {{.Iface}}{{range .Params}}, {{.Name}} {{.DecodeType}}{{end}}) {{if .Result}}({{.Result}}, error){{else}}error{{end}} {
			return impl.{{.GoName}}(ctx{{range .Params}}, {{.Arg}}{{end}})
		}),
{{- else}}
		dispatch.Entry{
			Member: "{{.Member}}",
			Arity:  {{len .Params}},
			Overridden: func(self any) bool {
				_, ok := self.({{.Iface}})
				return ok
			},
			Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
{{- range $i, $p := .Params}}
				{{$p.Name}}, err := variant.ToContext[{{$p.DecodeType}}](ctx, args[{{$i}}])
				if err != nil {
					return variant.Variant{}, err
				}
{{- end}}
{{- if .Result}}
				r, err := self.({{.Iface}}).{{.GoName}}(ctx{{range .Params}}, {{.Arg}}{{end}})
				if err != nil {
					return variant.Variant{}, err
				}
				return variant.From(r)
{{- else}}
				return variant.Variant{}, self.({{.Iface}}).{{.GoName}}(ctx{{range .Params}}, {{.Arg}}{{end}})
{{- end}}
			},
		},
{{- end}}
{{- end}}
	)
}
{{end}}
{{- range .Signals}}
// {{.GoName}} connects fn to {{.Class}}.{{.Member}}.
func (x {{$.GoName}}) {{.GoName}}(ctx context.Context, fn func(ctx context.Context{{range .Params}}, {{.Name}} {{.Type}}{{end}}) error) (signal.Connection, error) {
{{- if le (len .Params) 3}}
	hub, ptr, err := x.Native().SignalTarget("{{.Member}}")
	if err != nil {
		return signal.Connection{}, err
	}
	return signal.Connect{{len .Params}}(ctx, hub, ptr, "{{.Member}}", func(ctx context.Context{{range .Params}}, {{.Name}} {{.DecodeType}}{{end}}) error {
		return fn(ctx{{range .Params}}, {{.Arg}}{{end}})
	})
{{- else}}
	return x.Native().Connect(ctx, "{{.Member}}", func(ctx context.Context, args []variant.Variant) error {
{{- range $i, $p := .Params}}
		{{$p.Name}}, err := variant.ToContext[{{$p.DecodeType}}](ctx, args[{{$i}}])
		if err != nil {
			return err
		}
{{- end}}
		return fn(ctx{{range .Params}}, {{.Arg}}{{end}})
	})
{{- end}}
}
{{end}}`))
