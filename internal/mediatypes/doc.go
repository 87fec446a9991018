// Package mediatypes provides media kind and MIME type classification
// by file extension.
package mediatypes
