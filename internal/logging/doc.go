// Package logging provides leveled logging for the catalog core.
//
// The log level is read once from the DEBUG and LOG_LEVEL environment
// variables and can be overridden programmatically with SetLevel.
package logging
