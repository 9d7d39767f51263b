package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxVoiceBytes caps downloads; Telegram's own voice limit is 20 MB.
const maxVoiceBytes = 25 << 20

// downloadVoice fetches the audio of a voice or audio message and
// returns its bytes plus a filename the transcription API can use to
// sniff the container format.
func (c *Connector) downloadVoice(ctx context.Context, msg *tgbotapi.Message) ([]byte, string, error) {
	var fileID string
	switch {
	case msg.Voice != nil:
		fileID = msg.Voice.FileID
	case msg.Audio != nil:
		fileID = msg.Audio.FileID
	default:
		return nil, "", fmt.Errorf("telegram: no voice or audio in message")
	}

	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: get file URL: %w", err)
	}

	audio, err := downloadFile(ctx, fileURL)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: download audio: %w", err)
	}

	filename := path.Base(fileURL)
	if filename == "." || filename == "/" {
		filename = "voice.ogg"
	}
	return audio, filename, nil
}

func downloadFile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes))
}
