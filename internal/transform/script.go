package transform

import (
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// reduceSymbol is the function a reducer script must define
const reduceSymbol = "main.Reduce"

// scriptPackages maps the import paths a reducer script may use to their
// yaegi symbol keys. None of them reaches files, processes or the network.
var scriptPackages = map[string]string{
	"math":    "math/math",
	"sort":    "sort/sort",
	"strconv": "strconv/strconv",
	"strings": "strings/strings",
}

func scriptSymbols() interp.Exports {
	exports := make(interp.Exports, len(scriptPackages))
	for _, key := range scriptPackages {
		exports[key] = stdlib.Symbols[key]
	}
	return exports
}

// CompileReducer interprets Go source defining
//
//	func Reduce(values []float64) float64
//
// and returns it as a Reducer. The script may import math, sort, strconv
// and strings only. A missing package clause is added.
func CompileReducer(src string) (Reducer, error) {
	i := interp.New(interp.Options{
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err := i.Use(scriptSymbols()); err != nil {
		return nil, fmt.Errorf("load script symbols: %w", err)
	}

	if !hasPackageClause(src) {
		src = "package main\n\n" + src
	}
	if err := checkImports(src); err != nil {
		return nil, err
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("compile reducer script: %w", err)
	}

	v, err := i.Eval(reduceSymbol)
	if err != nil {
		return nil, fmt.Errorf("reducer script must define func Reduce([]float64) float64: %w", err)
	}
	fn, ok := v.Interface().(func([]float64) float64)
	if !ok {
		return nil, fmt.Errorf("reducer script: Reduce has type %s, want func([]float64) float64", v.Type())
	}

	return func(values []float64) float64 {
		return fn(values)
	}, nil
}

// checkImports rejects scripts importing a package outside scriptPackages
func checkImports(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "reducer.go", src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("compile reducer script: %w", err)
	}
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("compile reducer script: bad import %s", imp.Path.Value)
		}
		if _, ok := scriptPackages[path]; !ok {
			return fmt.Errorf("reducer script: import of %q is not allowed", path)
		}
	}
	return nil
}

// hasPackageClause reports whether the first non-comment token is "package"
func hasPackageClause(src string) bool {
	for len(src) > 0 {
		switch {
		case strings.ContainsRune(" \t\r\n", rune(src[0])):
			src = src[1:]
		case strings.HasPrefix(src, "//"):
			end := strings.IndexByte(src, '\n')
			if end < 0 {
				return false
			}
			src = src[end+1:]
		case strings.HasPrefix(src, "/*"):
			end := strings.Index(src, "*/")
			if end < 0 {
				return false
			}
			src = src[end+2:]
		default:
			return strings.HasPrefix(src, "package")
		}
	}
	return false
}
