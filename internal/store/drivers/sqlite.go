package drivers

import (
	// registers "sqlite" (pure Go, no cgo)
	_ "modernc.org/sqlite"
)
