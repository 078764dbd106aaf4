package cmd

import "github.com/urfave/cli"

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir, d",
		Usage: "directory holding the database and objects (overrides INFOBOARD_DATA_DIR)",
	}

	runFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Usage: "HTTP listen address (overrides INFOBOARD_LISTEN)",
		},
		dataDirFlag,
	}

	dataDirFlags = []cli.Flag{dataDirFlag}

	manifestInitFlags = []cli.Flag{
		dataDirFlag,
		cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing manifest",
		},
	}

	rpcFlags = []cli.Flag{
		dataDirFlag,
		cli.StringFlag{
			Name:  "addr",
			Usage: "base URL of the running server (default derived from INFOBOARD_LISTEN)",
		},
		cli.StringFlag{
			Name:   "token",
			Usage:  "admin token (default from INFOBOARD_ADMIN_TOKEN or the keyring)",
			EnvVar: "INFOBOARD_ADMIN_TOKEN",
		},
	}

	tokenFlags = []cli.Flag{
		dataDirFlag,
		cli.BoolFlag{
			Name:  "rotate",
			Usage: "replace the stored token with a new one",
		},
	}
)
