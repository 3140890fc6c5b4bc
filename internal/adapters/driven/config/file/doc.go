// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based Yard configuration
//
// A config.toml looks like:
//
//	[yard]
//	id = "cities"
//	strategy = "used"
//	level = "special"
//	upstream = "/srv/sites/dbpedia"
//
//	[backend]
//	type = "sqlite"
//	path = "/var/lib/yard"
//	timeout = "30s"
//
//	[indexing]
//	concurrency = 4
//	interval = "10m"
//	sources = ["/srv/exports/cities"]
//	score_field = "http://ex.org/rank"
package file
