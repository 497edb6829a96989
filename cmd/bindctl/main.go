package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/nativebind/bindgen"
	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/engine"
	"github.com/wippyai/nativebind/engine/dl"
	"github.com/wippyai/nativebind/engine/wasm"
	"github.com/wippyai/nativebind/runtime"
)

type options struct {
	api         string
	gen         string
	pkg         string
	classes     string
	wasmFile    string
	libFile     string
	configFile  string
	call        string
	args        string
	list        bool
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.api, "api", "", "Path to the API description (YAML or JSON)")
	flag.BoolVar(&o.list, "list", false, "List classes and members and exit")
	flag.StringVar(&o.gen, "gen", "", "Write generated wrappers to this file (- for stdout)")
	flag.StringVar(&o.pkg, "pkg", "api", "Package name of generated wrappers")
	flag.StringVar(&o.classes, "classes", "", "Generate only these classes (comma-separated)")
	flag.StringVar(&o.wasmFile, "wasm", "", "Path to an engine compiled to WebAssembly")
	flag.StringVar(&o.libFile, "lib", "", "Path to an engine shared library")
	flag.StringVar(&o.configFile, "config", "", "Runtime config (YAML)")
	flag.StringVar(&o.call, "call", "", "Construct Class and call method (Class.method)")
	flag.StringVar(&o.args, "args", "", "Arguments for -call (comma-separated)")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if o.api == "" {
		fmt.Fprintln(os.Stderr, "Usage: bindctl -api <api.yaml> -list")
		fmt.Fprintln(os.Stderr, "       bindctl -api <api.yaml> -gen <out.go> [-pkg name] [-classes A,B]")
		fmt.Fprintln(os.Stderr, "       bindctl -api <api.yaml> -wasm <engine.wasm> | -lib <engine.so> [-call Class.method -args a,b]")
		fmt.Fprintln(os.Stderr, "       bindctl -api <api.yaml> [-wasm ... | -lib ...] -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	ctx := context.Background()

	var cfg runtime.Config
	if o.configFile != "" {
		var err error
		if cfg, err = runtime.LoadConfig(o.configFile); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	engine.SetLogger(logger)

	db, err := classdb.LoadFile(o.api)
	if err != nil {
		return fmt.Errorf("load API: %w", err)
	}

	if o.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal on stdout")
	}

	if o.list {
		printAPI(db)
		return nil
	}

	if o.gen != "" {
		return generate(db, o)
	}

	backend, err := openBackend(ctx, db, o, logger)
	if err != nil {
		return err
	}

	var rt *runtime.Runtime
	if backend != nil {
		rt, err = runtime.New(ctx, backend, db, runtime.WithConfig(cfg), runtime.WithLogger(logger))
		if err != nil {
			backend.Close(ctx)
			return fmt.Errorf("start runtime: %w", err)
		}
		defer rt.Close(ctx)
	}

	if o.interactive {
		return runInteractive(db, rt, o.api)
	}

	if rt == nil {
		printAPI(db)
		return nil
	}

	fmt.Printf("Engine: %s\n", backend.Version())
	fmt.Printf("API: %s (%d classes)\n", db.Version, db.Len())
	if o.call == "" {
		return nil
	}

	class, method, ok := strings.Cut(o.call, ".")
	if !ok {
		return fmt.Errorf("-call wants Class.method, got %q", o.call)
	}
	var raw []string
	if o.args != "" {
		raw = strings.Split(o.args, ",")
	}
	result, err := callOnNew(ctx, rt, class, method, raw)
	if err != nil {
		return err
	}
	fmt.Printf("\nResult: %s\n", result)
	return nil
}

func generate(db *classdb.DB, o options) error {
	var classes []string
	if o.classes != "" {
		classes = strings.Split(o.classes, ",")
	}
	src, err := bindgen.Generate(db, bindgen.Options{Package: o.pkg, Classes: classes})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if o.gen == "-" {
		_, err = os.Stdout.Write(src)
		return err
	}
	if err := os.WriteFile(o.gen, src, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", o.gen, err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", o.gen, len(src))
	return nil
}

func openBackend(ctx context.Context, db *classdb.DB, o options, logger *zap.Logger) (engine.Backend, error) {
	switch {
	case o.wasmFile != "" && o.libFile != "":
		return nil, fmt.Errorf("-wasm and -lib are exclusive")
	case o.wasmFile != "":
		e, err := wasm.LoadFile(ctx, o.wasmFile, &wasm.Config{Logger: logger, WASI: true})
		if err != nil {
			return nil, fmt.Errorf("load engine: %w", err)
		}
		return e, nil
	case o.libFile != "":
		e, err := dl.Open(o.libFile, db, &dl.Config{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open engine: %w", err)
		}
		return e, nil
	}
	return nil, nil
}

func printAPI(db *classdb.DB) {
	fmt.Printf("API version: %s\n", db.Version)
	for _, c := range db.Classes() {
		header := c.Name
		if c.Parent != "" {
			header += " : " + c.Parent
		}
		var flags []string
		if c.RefCounted {
			flags = append(flags, "refcounted")
		}
		if !c.Instantiable {
			flags = append(flags, "abstract")
		}
		if len(flags) > 0 {
			header += " [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Printf("\n%s\n", header)
		for _, m := range c.OwnMethods() {
			prefix := "  "
			if m.Virtual {
				prefix = "  virtual "
			}
			fmt.Printf("%s%s\n", prefix, formatMethod(m))
		}
		for _, s := range c.Signals() {
			fmt.Printf("  signal %s(%s)\n", s.Name, formatArgs(s.Args))
		}
	}
}
