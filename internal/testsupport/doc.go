// Package testsupport holds helpers shared by package tests: temp-dir backed
// configs, opened stores, fake videos and stub scripts, and a controllable clock.
package testsupport
