// Package diag defines compiler diagnostics: severity, code, source position
// and a bounded collection used while compiling a source unit.
package diag
