package walker

// DefaultIgnorePatterns are the built-in excludes applied to every walk
// unless a query's DisregardIgnoreFiles (for .gitignore specifically) or an
// explicit include pattern overrides them. Patterns use gitignore syntax.
var DefaultIgnorePatterns = []string{
	".git/",
	"node_modules/",
	"dist/",
	"build/",
	"coverage/",
	"__pycache__/",
	".next/",
	"target/",
	"vendor/",

	".DS_Store",
	"Thumbs.db",
	".idea/",
	".vscode/",
	"*.swp",
	"*.swo",
}
