package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

// IndexBuildAction は法令テキストからインデックスを作り直すコマンドのアクション
func IndexBuildAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	log := appCtx.Logger()
	log.Info("インデックス作成を開始", "dataDir", appCtx.Config.Index.DataDir, "backend", appCtx.Config.Index.Backend)

	result, err := appCtx.Container.IndexService.Build(ctx)
	if err != nil {
		log.Error("インデックス作成に失敗しました", "error", err)
		return err
	}

	fmt.Printf("文書数: %d\nチャンク数: %d\nモデル: %s (%d次元)\n保存先: %s\n所要時間: %s\n",
		result.Documents,
		result.Chunks,
		result.EmbeddingModel,
		result.Dimension,
		result.Backend,
		result.Duration.Round(time.Millisecond),
	)
	return nil
}
