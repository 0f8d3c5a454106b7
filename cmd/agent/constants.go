package main

const showWidth = 100

var commands = []string{"run", "show", "view", "sessions", "init", "help"}

var replCommands = []string{
	"/help      show commands",
	"/reset     reset the device and start fresh",
	"/sessions  list recorded sessions",
	"/exit      quit",
}

const usage = `usage:
  agent [run] [-config path] [-goal text] [-task name]
  agent show <run-dir>
  agent view <run-dir>
  agent sessions [-config path] [-import]
  agent init [dir]
`
