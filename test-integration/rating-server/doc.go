// Package integration provides integration tests for the rating server.
// These tests run the complete server lifecycle against file and HTTP ranking
// sources and exercise refresh, pagination, search and streaming end to end.
package integration
