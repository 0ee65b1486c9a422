// Command emerald はコミュニティディレクトリのWebサーバー・ワーカー・管理コマンドを起動する。
//
//	emerald [serve]                       Webサーバー
//	emerald worker                        期限切れデータの定期削除
//	emerald migrate                       データベースマイグレーション
//	emerald healthcheck                   /health の疎通確認
//	emerald invite [email]                招待キーを発行してアカウント作成URLを出力
//	emerald images <base> <small> <outdir> サイトアイコン一式を生成
//	emerald help                          サブコマンドの一覧
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/emerald/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
