package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
	CommandInvite      Command = "invite"
	CommandImages      Command = "images"
	CommandHelp        Command = "help"
)

type commandSpec struct {
	cmd   Command
	args  string
	usage string
}

// commands は使い方の表示順。
var commands = []commandSpec{
	{CommandServe, "", "Webサーバーを起動する（既定）"},
	{CommandWorker, "", "期限切れのセッションと招待キーを定期的に削除する"},
	{CommandMigrate, "", "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "", "ローカルの /health を確認する（コンテナのヘルスチェック用）"},
	{CommandInvite, "[email]", "招待キーを発行し、アカウント作成URLを出力する"},
	{CommandImages, "<base> <small> <outdir>", "サイトアイコン一式を生成する"},
	{CommandHelp, "", "この一覧を表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServe、未知のコマンドはエラーを返す。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	name := args[0]
	if name == "-h" || name == "--help" {
		return CommandHelp, nil
	}
	for _, c := range commands {
		if string(c.cmd) == name {
			return c.cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (run \"emerald help\")", name)
}

// commandArgs はサブコマンド名を除いた引数を返す。
func commandArgs(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}

// writeUsage はサブコマンドの一覧をwに書き出す。
func writeUsage(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "usage: emerald <command> [args]")
	fmt.Fprintln(tw)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", strings.TrimSpace(string(c.cmd)+" "+c.args), c.usage)
	}
	return tw.Flush()
}
