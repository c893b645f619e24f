package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Brownie44l1/digitscope/internal/heatmap"
	"github.com/Brownie44l1/digitscope/internal/model"
	"github.com/Brownie44l1/digitscope/internal/occlusion"
	"github.com/Brownie44l1/digitscope/internal/raster"
	"github.com/Brownie44l1/digitscope/internal/task"
)

const (
	msgStart = `👋 Hi! Send me a photo of a handwritten digit.

I will tell you which digit I see and highlight the parts of the drawing that mattered most.

📋 Commands:
/help — how to get good results`

	msgHelp = `ℹ️ Tips:

• Dark ink on white paper
• One digit per photo, roughly centred
• Fill most of the frame

The red overlay marks the regions whose erasure lowers my confidence the most.`

	msgSendPhoto       = "📸 Please send a photo of a single digit."
	msgUnknownCommand  = "❓ Unknown command. Use /help."
	msgProcessing      = "⏳ Looking at your digit..."
	msgProcessingError = "⚠️ Could not process the image. Try another photo."
	msgModelError      = "⚠️ The model is not available right now. Try again later."
)

type Service interface {
	Explain(ctx context.Context, key string, g *model.Grid) (*occlusion.Result, error)
}

type Bot struct {
	api     *tgbotapi.BotAPI
	service Service
}

func NewBot(token string, service Service) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:     api,
		service: service,
	}, nil
}

// Run processes updates until ctx is cancelled, then waits for the messages
// already being handled. Messages are handled concurrently so a new photo can
// supersede a running sweep for its chat.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				b.handleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}

	b.sendMessage(msg.Chat.ID, msgSendPhoto)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID, msgStart)
	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)
	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	b.sendMessage(msg.Chat.ID, msgProcessing)

	// largest resolution comes last
	photo := msg.Photo[len(msg.Photo)-1]

	data, err := b.downloadFile(photo.FileID)
	if err != nil {
		log.Printf("Error downloading photo: %v", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	img, _, err := raster.Decode(bytes.NewReader(data))
	if err != nil {
		log.Printf("Error decoding photo: %v", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	if reply := explainReply(ctx, b.service, msg.Chat.ID, img); reply != nil {
		if _, err := b.api.Send(reply); err != nil {
			log.Printf("Error sending reply: %v", err)
		}
	}
}

// explainReply builds the answer to a decoded photo: the drawing with its
// heatmap and a caption, or an error message. It returns nil when a newer
// photo from the same chat superseded this one.
func explainReply(ctx context.Context, service Service, chatID int64, img *image.RGBA) tgbotapi.Chattable {
	key := strconv.FormatInt(chatID, 10)
	result, err := service.Explain(ctx, key, raster.Rasterize(img))
	switch {
	case errors.Is(err, task.ErrSuperseded):
		return nil
	case errors.Is(err, model.ErrModelUnavailable):
		log.Printf("Explain error: %v", err)
		return tgbotapi.NewMessage(chatID, msgModelError)
	case err != nil:
		log.Printf("Explain error: %v", err)
		return tgbotapi.NewMessage(chatID, msgProcessingError)
	}

	bounds := img.Bounds()
	cells, err := heatmap.Project(result.Heat, result.TileSize, bounds.Dx(), bounds.Dy())
	if err != nil {
		log.Printf("Project error: %v", err)
		return tgbotapi.NewMessage(chatID, Caption(result.Baseline))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, heatmap.Compose(img, cells)); err != nil {
		log.Printf("Encode error: %v", err)
		return tgbotapi.NewMessage(chatID, Caption(result.Baseline))
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "heatmap.png", Bytes: buf.Bytes()})
	photo.Caption = Caption(result.Baseline)
	return photo
}

// Caption renders the prediction and the top three classes.
func Caption(p model.Probabilities) string {
	var sb strings.Builder
	class := p.Argmax()
	fmt.Fprintf(&sb, "🔢 I see a %d (%.1f%%)\n\nTop-3:", class, p[class]*100)
	for _, s := range p.Top(3) {
		fmt.Fprintf(&sb, "\n%d — %.1f%%", s.Class, s.Probability*100)
	}
	return sb.String()
}

func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	resp, err := http.Get(file.Link(b.api.Token))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
