//go:build ndebug

package core

const debugChecks = false
