package api

import (
	"encoding/base64"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/assistant"
)

type chatRequest struct {
	Messages []assistant.Message `json:"messages"`
	Image    *struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"image,omitempty"`
}

type chatResponse struct {
	Reply       string                       `json:"reply"`
	Appointment *assistant.AppointmentIntent `json:"appointment,omitempty"`
}

func (h *Handler) assistantChat(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		respondError(w, http.StatusServiceUnavailable, assistant.Apology)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var image *assistant.Image
	if req.Image != nil {
		data, err := base64.StdEncoding.DecodeString(req.Image.Data)
		if err != nil {
			respondError(w, http.StatusBadRequest, "image data must be base64")
			return
		}
		image = &assistant.Image{MIMEType: req.Image.MIMEType, Data: data}
	}

	reply, err := h.assistant.Chat(r.Context(), req.Messages, image)
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		h.logger.Warn("assistant unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, assistant.Apology)
		return
	}
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	resp := chatResponse{Reply: reply}
	if intent, err := assistant.ParseAppointmentIntent(reply); err == nil {
		resp.Appointment = &intent
	}
	respondJSON(w, http.StatusOK, resp)
}
