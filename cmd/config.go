package cmd

import "time"

const (
	DEF_SHUTDOWN_TIMEOUT = 10 * time.Second
	DEF_RPC_TIMEOUT      = 30 * time.Second
)

const DESCRIPTION = `
infoboard drives an unattended public information display. It alternates
between a live data board fed by published CSV sheets and a carousel of
images and videos listed in a manifest, and serves both to kiosk browsers
over a websocket.
`

const (
	RunDescription = `The run command starts the display engine and its HTTP server.
Settings come from INFOBOARD_* environment variables; the flags
below override the most common ones.

Example:
        infoboard run --listen :8080 --data-dir /var/lib/infoboard

`
	ManifestDescription = `The manifest command manages the carousel manifest stored in the
local object store.

Example:
        infoboard manifest init
        infoboard manifest show
        infoboard manifest refresh

`
	FetchDescription = `The fetch command downloads a feed once and prints the rows the
board would show. Pass a feed name (projects, flights) to use the
configured URL and columns, or any CSV URL to dump it raw.

Example:
        infoboard fetch flights
        infoboard fetch https://example.com/sheet.csv

`
	TokenDescription = `The token command prints the admin token guarding the /rpc
endpoint, creating one on first use. It is kept in the system
keyring, or in the data directory when no keyring is available.

Example:
        infoboard token
        infoboard token --rotate

`
)

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`
