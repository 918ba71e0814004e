//go:build !ndebug

package core

const debugChecks = true
