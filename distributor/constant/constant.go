package constant

import "os"

// <NodeDir>/                    (e.g., /home/dropline/.dropline)
// └── config/
//	└── dropline_config.json
// └── databases/
//	└── distributor.db

const (
	NodeDir = ".dropline"

	ConfigSubdir   = "config"
	ConfigFileName = "dropline_config.json"

	DatabasesSubdir  = "databases"
	DatabaseFileName = "distributor.db"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir
