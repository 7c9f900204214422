package artifact

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// goAnalyzer extracts declarations from Go source using the language's own
// grammar facility, so symbols carry accurate line spans and doc comments.
type goAnalyzer struct{}

func (goAnalyzer) Analyze(content string) ([]RawSymbol, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snapshot.go", content, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse go source: %w", err)
	}

	var symbols []RawSymbol
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			symbols = append(symbols, goFunc(fset, content, d))
		case *ast.GenDecl:
			symbols = append(symbols, goGenDecl(fset, d)...)
		}
	}
	return symbols, nil
}

func goFunc(fset *token.FileSet, content string, d *ast.FuncDecl) RawSymbol {
	name := d.Name.Name
	fullName := name
	parent := ""
	if d.Recv != nil && len(d.Recv.List) > 0 {
		parent = receiverTypeName(d.Recv.List[0].Type)
		if parent != "" {
			fullName = parent + "." + name
		}
	}

	// The signature is the source text up to the end of the function type,
	// i.e. the declaration without its body.
	sig := sourceSlice(fset, content, d.Pos(), d.Type.End())

	return RawSymbol{
		Type:       SymbolFunction,
		Name:       name,
		FullName:   fullName,
		Signature:  sig,
		Docstring:  docText(d.Doc),
		StartLine:  fset.Position(d.Pos()).Line,
		EndLine:    fset.Position(d.End()).Line,
		Visibility: visibilityFor("go", name),
		Parent:     parent,
	}
}

func goGenDecl(fset *token.FileSet, d *ast.GenDecl) []RawSymbol {
	var symbols []RawSymbol
	for _, spec := range d.Specs {
		switch sp := spec.(type) {
		case *ast.ImportSpec:
			path := strings.Trim(sp.Path.Value, `"`)
			name := path
			if idx := strings.LastIndex(path, "/"); idx >= 0 {
				name = path[idx+1:]
			}
			if sp.Name != nil {
				name = sp.Name.Name
			}
			symbols = append(symbols, RawSymbol{
				Type:      SymbolImport,
				Name:      name,
				FullName:  path,
				Signature: "import " + sp.Path.Value,
				StartLine: fset.Position(sp.Pos()).Line,
				EndLine:   fset.Position(sp.End()).Line,
			})
		case *ast.TypeSpec:
			doc := docText(sp.Doc)
			if doc == "" {
				doc = docText(d.Doc)
			}
			symbols = append(symbols, RawSymbol{
				Type:       SymbolClass,
				Name:       sp.Name.Name,
				FullName:   sp.Name.Name,
				Signature:  "type " + sp.Name.Name + " " + typeKind(sp.Type),
				Docstring:  doc,
				StartLine:  fset.Position(sp.Pos()).Line,
				EndLine:    fset.Position(sp.End()).Line,
				Visibility: visibilityFor("go", sp.Name.Name),
			})
		case *ast.ValueSpec:
			doc := docText(sp.Doc)
			if doc == "" {
				doc = docText(d.Doc)
			}
			for _, ident := range sp.Names {
				if ident.Name == "_" {
					continue
				}
				symbols = append(symbols, RawSymbol{
					Type:       SymbolVariable,
					Name:       ident.Name,
					FullName:   ident.Name,
					Signature:  strings.ToLower(d.Tok.String()) + " " + ident.Name,
					Docstring:  doc,
					StartLine:  fset.Position(sp.Pos()).Line,
					EndLine:    fset.Position(sp.End()).Line,
					Visibility: visibilityFor("go", ident.Name),
				})
			}
		}
	}
	return symbols
}

// receiverTypeName unwraps pointer and generic receivers to the named type.
func receiverTypeName(expr ast.Expr) string {
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

func typeKind(expr ast.Expr) string {
	switch expr.(type) {
	case *ast.StructType:
		return "struct"
	case *ast.InterfaceType:
		return "interface"
	case *ast.FuncType:
		return "func"
	case *ast.MapType:
		return "map"
	case *ast.ArrayType:
		return "slice"
	default:
		return "type"
	}
}

func docText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	return strings.TrimSpace(cg.Text())
}

// sourceSlice returns the source text between two token positions.
func sourceSlice(fset *token.FileSet, content string, from, to token.Pos) string {
	start := fset.Position(from).Offset
	end := fset.Position(to).Offset
	if start < 0 || end > len(content) || start >= end {
		return ""
	}
	return strings.Join(strings.Fields(content[start:end]), " ")
}
