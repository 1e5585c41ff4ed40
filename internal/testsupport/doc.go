// Package testsupport provides shared fixtures for package tests: temp-dir
// configs, database helpers, and fake collaborators.
package testsupport
