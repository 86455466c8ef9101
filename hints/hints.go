// Package hints embeds the default hint scripts, one <language>.risor per
// language.
package hints

import "embed"

//go:embed *.risor
var FS embed.FS
