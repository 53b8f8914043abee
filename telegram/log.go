package telegram

import "github.com/rs/zerolog"

// LogSink writes every telegram to the log at info level.
type LogSink struct {
	Log zerolog.Logger
}

// HandleTelegram logs t at info level.
func (s LogSink) HandleTelegram(t Telegram) {
	s.Log.Info().
		Str("source", t.Source).
		Int("len", len(t.Payload)).
		Str("telegram", t.Hex()).
		Msg("telegram received")
}
