package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects the running shell to talk to.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// HistoryFlags holds flags for the history command.
type HistoryFlags struct {
	APIFlags
	Limit int
}
