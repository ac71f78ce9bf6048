package app

import (
	"fmt"
	"io"
	"strings"
)

// Command はdonormatchバイナリのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
)

// commandHelp はusage表示の順序と説明。
var commandHelp = []struct {
	cmd  Command
	args string
	desc string
}{
	{CommandServe, "", "start the HTTP API (default)"},
	{CommandMigrate, "[up | down [n] | version]", "apply, roll back or inspect schema migrations"},
	{CommandHealthcheck, "", "probe GET /health on SERVER_PORT (container HEALTHCHECK)"},
}

// ParseCommand は先頭の引数をサブコマンドとして解釈し、残りの引数と合わせて返す。
// 引数がない場合や先頭がフラグ風("-"始まり)の場合はserveとみなす。
// 未知のサブコマンドはエラーとする。
func ParseCommand(args []string) (Command, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return CommandServe, args, nil
	}
	for _, h := range commandHelp {
		if string(h.cmd) == args[0] {
			return h.cmd, args[1:], nil
		}
	}
	return "", nil, fmt.Errorf("unknown command %q", args[0])
}

// Usage はサブコマンドの一覧を書き出す。
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: donormatch <command> [args]")
	for _, h := range commandHelp {
		name := string(h.cmd)
		if h.args != "" {
			name += " " + h.args
		}
		fmt.Fprintf(w, "  %-40s %s\n", name, h.desc)
	}
}
