package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"

	"github.com/infoboard/infoboard/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var currentBuildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "infoboard",
		HelpName:              "infoboard",
		Usage:                 "Unattended information display engine.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "infoboard <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:               "run",
				Aliases:            []string{"daemon"},
				Usage:              "start the display engine and server",
				Description:        RunDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             run,
				Flags:              runFlags,
			},
			{
				Name:               "manifest",
				Aliases:            []string{"m"},
				Usage:              "manage the carousel manifest",
				Description:        ManifestDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Subcommands: []cli.Command{
					{
						Name:   "init",
						Usage:  "write the default manifest",
						Action: manifestInit,
						Flags:  manifestInitFlags,
					},
					{
						Name:   "show",
						Usage:  "print the stored manifest",
						Action: manifestShow,
						Flags:  dataDirFlags,
					},
					{
						Name:   "refresh",
						Usage:  "make the running display re-read the manifest",
						Action: manifestRefresh,
						Flags:  rpcFlags,
					},
				},
			},
			{
				Name:               "fetch",
				Aliases:            []string{"f"},
				Usage:              "fetch a feed once and print it",
				ArgsUsage:          "<projects|flights|url>",
				Description:        FetchDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             fetch,
			},
			{
				Name:               "token",
				Usage:              "print the admin token",
				Description:        TokenDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             token,
				Flags:              tokenFlags,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of infoboard",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:      run,
		Flags:       runFlags,
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
