// Package config defines the TOML configuration consumed by the catalog
// core: external tool paths, process timeouts, thumbnail variant specs and
// thumbnail store limits. The embedding process owns the file; this package
// only reads and validates it.
package config
