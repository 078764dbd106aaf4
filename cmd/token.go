package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/infoboard/infoboard/cmd/common"
	"github.com/infoboard/infoboard/pkg/keyring"
)

func token(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "token", "load_config", err)
		return nil
	}
	if cfg.AdminToken != "" && !ctx.Bool("rotate") {
		fmt.Fprintln(stdout, cfg.AdminToken)
		return nil
	}
	store := newTokenStore(cfg.DataDir, newLogger())

	var tok string
	if ctx.Bool("rotate") {
		if tok, err = keyring.NewToken(); err == nil {
			err = store.Set(tok)
		}
	} else {
		tok, _, err = keyring.Ensure(store)
	}
	if err != nil {
		common.PrintRuntimeErr(ctx, "token", "keyring", err)
		return nil
	}
	fmt.Fprintln(stdout, tok)
	return nil
}
