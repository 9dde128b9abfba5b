package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	apphttp "github.com/jinford/steuer-rag/internal/interface/http"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	log := appCtx.Logger()
	if err := appCtx.Container.AskService.Init(ctx); err != nil {
		log.Error("インデックスの読み込みに失敗しました", "error", err)
		return err
	}

	port := appCtx.Config.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	router := apphttp.NewRouter(apphttp.NewHandler(appCtx.Container.AskService, log), log)
	return apphttp.Serve(ctx, router, port, log)
}
