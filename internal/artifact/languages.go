package artifact

import "path/filepath"

// LanguageForFile returns the language name for a given file path.
// Unrecognised extensions map to "text".
func LanguageForFile(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".rb":
		return "ruby"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".mts", ".cts":
		return "typescript"
	case ".tsx":
		return "tsx"
	case ".jsx":
		return "jsx"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".kt":
		return "kotlin"
	case ".cs":
		return "csharp"
	case ".cpp", ".cc", ".cxx":
		return "cpp"
	case ".c", ".h", ".hpp":
		return "c"
	case ".swift":
		return "swift"
	case ".php":
		return "php"
	case ".scala":
		return "scala"
	case ".ex", ".exs":
		return "elixir"
	case ".lua":
		return "lua"
	case ".sh", ".bash", ".zsh":
		return "bash"
	case ".sql":
		return "sql"
	case ".html", ".htm":
		return "html"
	case ".css":
		return "css"
	case ".vue":
		return "vue"
	case ".svelte":
		return "svelte"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".xml":
		return "xml"
	case ".md", ".mdx":
		return "markdown"
	case ".proto":
		return "protobuf"
	}
	return "text"
}
