// Package main provides localization for the recmari CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Segment recorded fighting-game videos into rounds and matches.": "録画された対戦動画をラウンドと試合に分割します。",

		// Analyze command
		"Analyzing %s (title: %s, stride %d)...": "%s を解析中 (タイトル: %s, ストライド %d)...",
		"Wrote %d matches (%d rounds) to %s":     "%d 試合 (%d ラウンド) を %s に書き込みました",
		"Failed to open video: %s":               "動画を開けませんでした: %s",
		"Invalid configuration: %s":              "設定が不正です: %s",
		"Interrupted, shutting down...":          "中断されました。シャットダウン中...",

		// Probe command
		"Resolution: %dx%d":    "解像度: %dx%d",
		"Frame rate: %.3f fps": "フレームレート: %.3f fps",
		"Frames: %d":           "フレーム数: %d",
		"Duration: %s":         "再生時間: %s",

		// Version command
		"recmari version %s": "recmari バージョン %s",
	})
}
