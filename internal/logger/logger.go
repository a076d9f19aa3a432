// Package logger はアプリケーション共通の構造化ロガーを提供します。
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New は出力先とレベルを指定してロガーを作成します。
// w が nil の場合は標準エラー出力を使います。release モードでは JSON で出力します。
func New(w io.Writer, level string, release bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true}
	if release {
		opts.Formatter = log.JSONFormatter
	}
	l := log.NewWithOptions(w, opts)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Discard はテスト用に出力を捨てるロガーを返します。
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}
