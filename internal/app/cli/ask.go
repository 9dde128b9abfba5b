package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/steuer-rag/internal/core/answer"
	"github.com/jinford/steuer-rag/internal/core/ask"
)

// AskAction は質問応答コマンドのアクション
// 引数で質問文が与えられればその1問に答え、--interactive の場合は標準入力から対話する
func AskAction(ctx context.Context, cmd *cli.Command) error {
	condition, err := ask.ParseCondition(cmd.String("condition"))
	if err != nil {
		return err
	}
	taskID := int(cmd.Int("task-id"))
	interactive := cmd.Bool("interactive")

	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" && !interactive {
		return fmt.Errorf("質問文を指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	svc := appCtx.Container.AskService
	if err := svc.Init(ctx); err != nil {
		appCtx.Logger().Error("インデックスの読み込みに失敗しました", "error", err)
		return err
	}

	if !interactive {
		resp, err := svc.Ask(ctx, ask.Params{Query: question, Condition: condition, TaskID: taskID})
		if err != nil {
			return err
		}
		printResponse(os.Stdout, resp)
		return nil
	}

	return chat(ctx, svc, os.Stdin, os.Stdout, condition, taskID, appCtx.Config.Answer.HistoryTurns)
}

// chat は1行1質問で対話し、会話履歴を保持する
func chat(ctx context.Context, svc *ask.Service, in io.Reader, out io.Writer, condition ask.Condition, taskID, keep int) error {
	var history []answer.Turn
	scanner := bufio.NewScanner(in)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			fmt.Fprint(out, "> ")
			continue
		}

		resp, err := svc.Ask(ctx, ask.Params{Query: query, Condition: condition, History: history, TaskID: taskID})
		if err != nil {
			return err
		}
		printResponse(out, resp)

		if !resp.Error {
			history = append(history, answer.Turn{Query: query, Answer: resp.Answer})
			if keep > 0 && len(history) > keep {
				history = history[len(history)-keep:]
			}
		}
		fmt.Fprint(out, "\n> ")
	}
	return scanner.Err()
}

func printResponse(w io.Writer, resp *ask.Response) {
	fmt.Fprintln(w, resp.Answer)

	if ref, ok := resp.LegalReferenceFull.Get(); ok {
		fmt.Fprintf(w, "\n--- 根拠 ---\n%s", ref)
		if url, ok := resp.SourceURL.Get(); ok {
			fmt.Fprintf(w, " (%s)", url)
		}
		fmt.Fprintln(w)
	}
	if q, ok := resp.Quote.Get(); ok {
		fmt.Fprintf(w, "\n--- 引用 [%s] ---\n%s\n", resp.QuoteTier.OrEmpty(), q)
	}
	if resp.Error && resp.Recoverable {
		fmt.Fprintln(w, "\n(もう一度お試しください)")
	}
}
