package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/steuer-rag/internal/app/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "steuer-rag",
		Usage: "ドイツ税法の条文に基づいて回答する RAG システム",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "build",
						Usage:  "法令テキストからインデックスを作り直す",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.IndexBuildAction,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "質問に回答する",
				ArgsUsage: "<質問文>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "condition",
						Usage: "実験条件 (augmented: 引用抽出あり / minimal: なし)",
						Value: "minimal",
					},
					&cli.IntFlag{
						Name:  "task-id",
						Usage: "登録済み引用のタスク番号",
					},
					&cli.BoolFlag{
						Name:    "interactive",
						Aliases: []string{"i"},
						Usage:   "標準入力から対話形式で質問する",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "server",
				Usage: "HTTPサーバコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "待ち受けポート (未指定なら PORT 環境変数)",
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
