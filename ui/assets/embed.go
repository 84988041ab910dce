package assets

import "embed"

// FS holds the stylesheet served under /assets/.
//
//go:embed css
var FS embed.FS
