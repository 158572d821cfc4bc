package ast

import (
	"embed"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	strcase "github.com/stoewer/go-strcase"
)

//go:embed types.go
var typesGoFile embed.FS

// schemaReflector extends the default jsonschema reflector with comments
// pulled straight from types.go, so the generated schema documents fields
// the same way the Go source does.
type schemaReflector struct {
	*jsonschema.Reflector
}

func newSchemaReflector() (*schemaReflector, error) {
	r := &jsonschema.Reflector{
		KeyNamer:       strcase.SnakeCase,
		Namer:          func(t reflect.Type) string { return strcase.SnakeCase(t.Name()) },
		ExpandedStruct: true,
	}
	sr := &schemaReflector{Reflector: r}
	if err := sr.loadComments(); err != nil {
		return nil, err
	}
	return sr, nil
}

// NewSchema generates a JSON Schema document describing the workflow
// document format, for editor tooling and the `laq schema` CLI command.
func NewSchema() ([]byte, error) {
	reflector, err := newSchemaReflector()
	if err != nil {
		return nil, err
	}
	full := reflector.Reflect(&Workflow{})
	return json.MarshalIndent(full, "", "  ")
}

func (r *schemaReflector) loadComments() error {
	commentMap := make(map[string]string)
	fset := token.NewFileSet()

	raw, err := typesGoFile.ReadFile("types.go")
	if err != nil {
		return err
	}

	f, err := parser.ParseFile(fset, "types.go", raw, parser.ParseComments)
	if err != nil {
		return err
	}

	pkg := reflect.TypeOf(Workflow{}).PkgPath()
	genDoc, typ := "", ""
	ast.Inspect(f, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.TypeSpec:
			typ = x.Name.String()
			if !ast.IsExported(typ) {
				typ = ""
				return true
			}
			txt := x.Doc.Text()
			if txt == "" && genDoc != "" {
				txt = genDoc
				genDoc = ""
			}
			commentMap[fmt.Sprintf("%s.%s", pkg, typ)] = strings.TrimSpace(txt)
		case *ast.Field:
			txt := x.Doc.Text()
			if txt == "" {
				txt = x.Comment.Text()
			}
			if typ != "" && txt != "" {
				for _, name := range x.Names {
					if ast.IsExported(name.String()) {
						commentMap[fmt.Sprintf("%s.%s.%s", pkg, typ, name)] = strings.TrimSpace(txt)
					}
				}
			}
		case *ast.GenDecl:
			genDoc = x.Doc.Text()
		}
		return true
	})

	r.CommentMap = commentMap
	return nil
}
