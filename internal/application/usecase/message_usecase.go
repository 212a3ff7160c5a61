package usecase

import (
	"context"
	"encoding/base64"

	"whatsam/internal/application/dto"
	"whatsam/internal/application/engine"
	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"
)

// MessageUseCase routes outbound sends through the lifecycle engine.
type MessageUseCase struct {
	engine *engine.Engine
}

// NewMessageUseCase creates a new MessageUseCase
func NewMessageUseCase(eng *engine.Engine) *MessageUseCase {
	return &MessageUseCase{engine: eng}
}

// Send validates and dispatches one message.
func (uc *MessageUseCase) Send(ctx context.Context, sessionID string, req *dto.SendMessageRequest) (*entity.SendResult, error) {
	msg, err := toOutbound(sessionID, req)
	if err != nil {
		return nil, err
	}
	return uc.engine.Send(ctx, msg, req.Options())
}

// SendBulk dispatches a capped batch with inter-message pacing. Items
// that fail conversion land in errors without touching the wire.
func (uc *MessageUseCase) SendBulk(ctx context.Context, sessionID string, req *dto.BulkSendRequest) *dto.BulkSendResponse {
	opts := entity.SendOptions{HumanSimulation: req.HumanSimulation}

	msgs := make([]*entity.OutboundMessage, 0, len(req.Messages))
	var precheckErrors []entity.BulkSendItem
	indexMap := make([]int, 0, len(req.Messages))

	for i := range req.Messages {
		msg, err := toOutbound(sessionID, &req.Messages[i])
		if err != nil {
			precheckErrors = append(precheckErrors, entity.BulkSendItem{Index: i, Error: err.Error()})
			continue
		}
		msgs = append(msgs, msg)
		indexMap = append(indexMap, i)
	}

	results, sendErrors := uc.engine.SendBulk(ctx, sessionID, msgs, opts)

	// Remap engine indices back onto request positions.
	for i := range results {
		results[i].Index = indexMap[results[i].Index]
	}
	for i := range sendErrors {
		sendErrors[i].Index = indexMap[sendErrors[i].Index]
	}

	return &dto.BulkSendResponse{
		Results: results,
		Errors:  append(precheckErrors, sendErrors...),
		Total:   len(req.Messages),
	}
}

// toOutbound converts the transport request into the domain payload.
func toOutbound(sessionID string, req *dto.SendMessageRequest) (*entity.OutboundMessage, error) {
	msgType := entity.MessageType(req.Type)
	if !msgType.IsValid() {
		return nil, errors.ErrInvalidMessageType
	}
	if req.To == "" {
		return nil, errors.ErrValidationFailed.WithMessage("to is required")
	}

	msg := &entity.OutboundMessage{
		SessionID:    sessionID,
		To:           req.To,
		Type:         msgType,
		Text:         req.Text,
		Caption:      req.Caption,
		MediaURL:     req.MediaURL,
		FileName:     req.FileName,
		MimeType:     req.MimeType,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		PollName:     req.PollName,
		PollOptions:  req.PollOptions,
		MessageIDs:   req.MessageIDs,
	}

	if req.Media != "" {
		data, err := base64.StdEncoding.DecodeString(req.Media)
		if err != nil {
			return nil, errors.ErrValidationFailed.WithCause(err).WithMessage("media must be base64")
		}
		msg.Media = data
	}

	return msg, nil
}
