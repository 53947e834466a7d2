package telegram

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxCaption is Telegram's media caption limit for regular accounts.
const MaxCaption = 1024

// UploadRequest describes one video post.
type UploadRequest struct {
	Path    string
	Caption string
	// Channel is "@name", a t.me link, "me" or a numeric id such as -1001234567890.
	Channel         string
	DurationSeconds float64
	Width           int
	Height          int
}

// Uploader posts videos with a user session.
type Uploader struct {
	cfg     Config
	storage *StringStorage
}

// NewUploader parses the session string; an empty one is ErrSessionEmpty.
func NewUploader(cfg Config, sessionString string) (*Uploader, error) {
	storage, err := NewStringStorage(sessionString)
	if err != nil {
		return nil, err
	}
	if storage.Empty() {
		return nil, ErrSessionEmpty
	}
	return &Uploader{cfg: cfg, storage: storage}, nil
}

// Upload sends req.Path as a streamable video to req.Channel.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) error {
	client := newClient(u.cfg, u.storage)

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to check auth status")
		}
		if !status.Authorized {
			return errors.Wrap(ErrSessionEmpty, "session is not authorized")
		}

		api := client.API()
		up := uploader.NewUploader(api).
			WithPartSize(uploader.MaximumPartSize).
			WithProgress(newUploadProgress(filepath.Base(req.Path)))

		logrus.Infof("Uploading to Telegram: file=%s, channel=%s", req.Path, req.Channel)
		file, err := up.FromPath(ctx, req.Path)
		if err != nil {
			return errors.Wrap(err, "failed to upload file")
		}

		sender := message.NewSender(api).WithUploader(up)
		target, err := resolveTarget(ctx, api, sender, req.Channel)
		if err != nil {
			return err
		}

		doc := message.UploadedDocument(file, styling.Plain(TruncateCaption(req.Caption))).
			MIME("video/mp4").
			Filename(filepath.Base(req.Path)).
			Video().
			Duration(time.Duration(req.DurationSeconds*float64(time.Second))).
			Resolution(req.Width, req.Height).
			SupportsStreaming()

		if _, err := target.Media(ctx, doc); err != nil {
			return errors.Wrap(err, "failed to send video")
		}
		logrus.Infof("Video posted: channel=%s", req.Channel)
		return nil
	})
}

// resolveTarget maps a channel reference to a message builder.
func resolveTarget(ctx context.Context, api *tg.Client, sender *message.Sender, channel string) (*message.RequestBuilder, error) {
	ref, err := ParseChannel(channel)
	if err != nil {
		return nil, err
	}
	switch {
	case ref.Self:
		return sender.Self(), nil
	case ref.Username != "":
		return sender.Resolve(ref.Username), nil
	}

	peer, err := findDialog(ctx, api, ref)
	if err != nil {
		return nil, err
	}
	return sender.To(peer), nil
}

// ChannelRef is a parsed CHANNEL value.
type ChannelRef struct {
	Self     bool
	Username string
	// Numeric ids in Bot API form: -100<channel>, -<chat> or <user>.
	ChannelID int64
	ChatID    int64
	UserID    int64
}

// ParseChannel understands "me", "@name", "name", t.me links and Bot API style numeric ids.
func ParseChannel(channel string) (ChannelRef, error) {
	c := strings.TrimSpace(channel)
	if c == "" {
		return ChannelRef{}, errors.New("channel is empty")
	}
	if strings.EqualFold(c, "me") || strings.EqualFold(c, "self") {
		return ChannelRef{Self: true}, nil
	}

	if id, err := strconv.ParseInt(c, 10, 64); err == nil {
		switch {
		case strings.HasPrefix(c, "-100") && len(c) > 4:
			return ChannelRef{ChannelID: -id - 1_000_000_000_000}, nil
		case id < 0:
			return ChannelRef{ChatID: -id}, nil
		default:
			return ChannelRef{UserID: id}, nil
		}
	}

	if strings.Contains(c, "t.me/") && strings.Contains(c, "/+") {
		return ChannelRef{}, errors.Errorf("invite links are not supported, use the numeric channel id: %s", c)
	}
	if !strings.HasPrefix(c, "@") && !strings.Contains(c, "t.me/") && !strings.HasPrefix(c, "tg:") {
		c = "@" + c
	}
	return ChannelRef{Username: c}, nil
}

// findDialog walks the account's dialogs looking for a numeric id, since the
// access hash needed to address a channel is only known from there.
func findDialog(ctx context.Context, api *tg.Client, ref ChannelRef) (tg.InputPeerClass, error) {
	iter := query.GetDialogs(api).BatchSize(100).Iter()
	for iter.Next(ctx) {
		peer := iter.Value().Peer
		switch p := peer.(type) {
		case *tg.InputPeerChannel:
			if ref.ChannelID != 0 && p.ChannelID == ref.ChannelID {
				return p, nil
			}
		case *tg.InputPeerChat:
			if ref.ChatID != 0 && p.ChatID == ref.ChatID {
				return p, nil
			}
		case *tg.InputPeerUser:
			if ref.UserID != 0 && p.UserID == ref.UserID {
				return p, nil
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list dialogs")
	}
	return nil, errors.Errorf("channel not found in dialogs: %+v", ref)
}

// TruncateCaption cuts s to MaxCaption characters, ending with an ellipsis when cut.
func TruncateCaption(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= MaxCaption {
		return s
	}
	return string(runes[:MaxCaption-1]) + "…"
}

type uploadProgress struct {
	mu      sync.Mutex
	name    string
	lastPct int
}

func newUploadProgress(name string) *uploadProgress {
	return &uploadProgress{name: name, lastPct: -1}
}

func (p *uploadProgress) Chunk(_ context.Context, state uploader.ProgressState) error {
	if state.Total <= 0 {
		return nil
	}
	pct := int(state.Uploaded * 100 / state.Total)

	p.mu.Lock()
	defer p.mu.Unlock()
	if pct/10 <= p.lastPct/10 && pct != 100 {
		return nil
	}
	if pct == p.lastPct {
		return nil
	}
	p.lastPct = pct
	logrus.Infof("Upload progress: %s %d%% (%s / %s)", p.name, pct,
		humanize.Bytes(uint64(state.Uploaded)), humanize.Bytes(uint64(state.Total)))
	return nil
}
