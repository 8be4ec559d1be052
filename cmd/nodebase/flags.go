package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

// GlobalFlags are the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	// Remote daemon connection; derived from the config's [server] section
	// when empty.
	APIUrl     string
	APITimeout time.Duration
	Token      string
	CACert     string
	Insecure   bool
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type StartFlags struct {
	Name   string
	EnvKVs []string
	Args   []string
}

type NameFlags struct {
	Name string
}

type EventsFlags struct {
	// Count stops after this many events; zero streams until interrupted.
	Count int
}
