// Package all registers every SQL backend. Binaries import it for side
// effects:
//
//	import _ "tabstat/internal/source/sqlds/all"
package all

import (
	_ "tabstat/internal/source/sqlds/mssql"
	_ "tabstat/internal/source/sqlds/postgres"
	_ "tabstat/internal/source/sqlds/sqlite"
)
