// Package formats registers the deterministic export parsers with the core
// format registry. Import it for its side effects:
//
//	import _ "github.com/JonMunkholm/rolodex/internal/core/formats"
package formats
