// Package appfs embeds the files shipped with the binaries: SQL migrations, email templates & assets.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* assets
var FS embed.FS
