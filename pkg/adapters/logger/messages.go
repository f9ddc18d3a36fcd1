package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration level messages (info)
		"Starting analysis pipeline":                       "解析パイプラインを開始します",
		"Analysis finished: %d matches, %d rounds":         "解析完了: %d 試合, %d ラウンド",
		"Analysis cancelled, flushing partial results":     "解析が中断されました。途中結果を書き出します",
		"Frame stream complete: %d frames analyzed":        "フレームストリーム終了: %d フレームを解析しました",
		"HUD layout resolved for %dx%d":                    "%dx%d のHUDレイアウトを確定しました",
		"Flushing open match with %d rounds at stream end": "ストリーム終了時に %d ラウンドの未確定試合を書き出します",

		// Source
		"Frame source failed after frame %d: %s": "フレーム %d 以降でフレームソースが失敗しました: %s",
		"Video opened: %dx%d @ %.2f fps":         "動画を開きました: %dx%d @ %.2f fps",

		// Stage errors
		"Region extraction failed at frame %d (%dx%d): %s": "フレーム %d (%dx%d) で領域抽出に失敗しました: %s",
		"Overlay rendering failed at frame %d: %s":         "フレーム %d のオーバーレイ描画に失敗しました: %s",

		// Boundaries
		"Match boundary at frame %d (gap %.1fs)":        "フレーム %d で試合境界を検出 (間隔 %.1f秒)",
		"Round boundary at frame %d (p1 %.2f, p2 %.2f)": "フレーム %d でラウンド境界を検出 (p1 %.2f, p2 %.2f)",
		"Match finalized: %d rounds (%s)":               "試合を確定しました: %d ラウンド (%s)",

		// Output
		"Failed to write match: %s": "試合の書き込みに失敗しました: %s",
		"Wrote match to %s":         "試合を %s に書き込みました",
	})
}
