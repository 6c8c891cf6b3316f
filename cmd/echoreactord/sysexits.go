package main

// Exit codes follow the canonical BSD sysexits.h values.
const (
	exOK       = 0
	exUsage    = 64
	exSoftware = 70
	exOSErr    = 71
	exConfig   = 78
)
