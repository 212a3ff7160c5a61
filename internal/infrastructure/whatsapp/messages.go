package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

// buildMessage converts an outbound payload into the protocol's wire
// message, uploading media through the library where needed.
func (c *Client) buildMessage(ctx context.Context, msg *entity.OutboundMessage) (*waE2E.Message, error) {
	switch msg.Type {
	case entity.MessageTypeText:
		if msg.Text == "" {
			return nil, errors.ErrEmptyContent.WithMessage("text is required")
		}
		return &waE2E.Message{Conversation: proto.String(msg.Text)}, nil

	case entity.MessageTypeLink:
		if msg.Text == "" {
			return nil, errors.ErrEmptyContent.WithMessage("link text is required")
		}
		return &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text:        proto.String(msg.Text),
				MatchedText: proto.String(msg.Text),
			},
		}, nil

	case entity.MessageTypeLocation:
		return &waE2E.Message{
			LocationMessage: &waE2E.LocationMessage{
				DegreesLatitude:  proto.Float64(msg.Latitude),
				DegreesLongitude: proto.Float64(msg.Longitude),
			},
		}, nil

	case entity.MessageTypeContact:
		if msg.ContactName == "" || msg.ContactPhone == "" {
			return nil, errors.ErrEmptyContent.WithMessage("contact name and phone are required")
		}
		vcard := fmt.Sprintf(
			"BEGIN:VCARD\nVERSION:3.0\nFN:%s\nTEL;type=CELL;waid=%s:%s\nEND:VCARD",
			msg.ContactName, msg.ContactPhone, msg.ContactPhone)
		return &waE2E.Message{
			ContactMessage: &waE2E.ContactMessage{
				DisplayName: proto.String(msg.ContactName),
				Vcard:       proto.String(vcard),
			},
		}, nil

	case entity.MessageTypePoll:
		if msg.PollName == "" || len(msg.PollOptions) < 2 {
			return nil, errors.ErrEmptyContent.WithMessage("poll needs a name and at least two options")
		}
		return c.wa.BuildPollCreation(msg.PollName, msg.PollOptions, 1), nil

	case entity.MessageTypeImage:
		return c.buildMediaMessage(ctx, msg, whatsmeow.MediaImage)
	case entity.MessageTypeDocument:
		return c.buildMediaMessage(ctx, msg, whatsmeow.MediaDocument)
	case entity.MessageTypeVideo:
		return c.buildMediaMessage(ctx, msg, whatsmeow.MediaVideo)
	case entity.MessageTypeAudio:
		return c.buildMediaMessage(ctx, msg, whatsmeow.MediaAudio)
	}

	return nil, errors.ErrInvalidMessageType
}

// buildMediaMessage uploads the attachment through the protocol library
// and wraps the upload result in the matching message kind. When only a
// URL was supplied, the bytes are fetched first and left on the payload
// so the caller can mirror them to the media bucket.
func (c *Client) buildMediaMessage(ctx context.Context, msg *entity.OutboundMessage, mediaType whatsmeow.MediaType) (*waE2E.Message, error) {
	if len(msg.Media) == 0 {
		if msg.MediaURL == "" {
			return nil, errors.ErrEmptyContent.WithMessage("media url or data is required")
		}
		data, err := fetchMedia(ctx, msg.MediaURL)
		if err != nil {
			return nil, err
		}
		msg.Media = data
	}

	uploaded, err := c.wa.Upload(ctx, msg.Media, mediaType)
	if err != nil {
		return nil, errors.ErrMessageSendFailed.WithCause(err).WithMessage("media upload failed")
	}

	mimeType := msg.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(msg.Media)
	}

	switch mediaType {
	case whatsmeow.MediaImage:
		return &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{
				Caption:       proto.String(msg.Caption),
				Mimetype:      proto.String(mimeType),
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil
	case whatsmeow.MediaDocument:
		return &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				Title:         proto.String(msg.FileName),
				FileName:      proto.String(msg.FileName),
				Caption:       proto.String(msg.Caption),
				Mimetype:      proto.String(mimeType),
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil
	case whatsmeow.MediaVideo:
		return &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{
				Caption:       proto.String(msg.Caption),
				Mimetype:      proto.String(mimeType),
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil
	case whatsmeow.MediaAudio:
		return &waE2E.Message{
			AudioMessage: &waE2E.AudioMessage{
				Mimetype:      proto.String(mimeType),
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil
	}

	return nil, errors.ErrInvalidMessageType
}

// fetchMedia downloads attachment bytes from a caller-supplied URL.
func fetchMedia(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.ErrValidationFailed.WithCause(err).WithMessage("invalid media url")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.ErrTransient.WithCause(err).WithMessage("media download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.ErrTransient.WithMessage(
			fmt.Sprintf("media download failed with status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ErrTransient.WithCause(err).WithMessage("media download failed")
	}
	return data, nil
}
