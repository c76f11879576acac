/*
Package config loads database configuration from YAML files.

A config file carries the store options (data directory, engine, write
durability) and the logging setup:

	store:
	  dir: /var/lib/hutch
	  engine: bolt
	  sync_writes: false
	log:
	  level: info
	  json: true

Load validates the result; Default returns the in-memory development
setup used when no file is given.
*/
package config
