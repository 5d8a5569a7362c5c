package drivers

import (
	// registers "pgx"
	_ "github.com/jackc/pgx/v5/stdlib"
)
