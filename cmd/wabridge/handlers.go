package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
	"wabridge/internal/service"

	"github.com/gorilla/mux"
)

type createDeviceRequest struct {
	Name       string `json:"device_name"`
	WebhookURL string `json:"webhook_url"`
	Note       string `json:"note"`
}

type webhookActionRequest struct {
	Action     string          `json:"action"`
	WebhookURL string          `json:"webhook_url"`
	Payload    json.RawMessage `json:"payload"`
}

type sendTextRequest struct {
	To              string `json:"to"`
	Text            string `json:"text"`
	QuotedMessageID string `json:"quoted_message_id"`
}

type sendMediaRequest struct {
	To       string `json:"to"`
	Media    string `json:"media"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
	Caption  string `json:"caption"`
}

type sendLocationRequest struct {
	To        string  `json:"to"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}

type sendContactRequest struct {
	To          string `json:"to"`
	DisplayName string `json:"display_name"`
	VCard       string `json:"vcard"`
}

// decodeBody parses a JSON request body with a size cap
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxRequestBodySize))
	if err != nil {
		return errors.New(errors.ErrCodeInvalidInput, "failed to read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New(errors.ErrCodeInvalidInput, "invalid JSON body")
	}
	return nil
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	}
}

// receiverResponse is the envelope the engine expects from its webhook target
type receiverResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleEngineEvent is the inbound webhook the engine posts events to. Only
// structurally malformed payloads are rejected; events for unknown sessions
// are acknowledged and dropped so the engine does not retry them forever.
func (s *Server) handleEngineEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxRequestBodySize))
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, receiverResponse{Error: "failed to read event body"})
			return
		}

		if err := s.processor.ProcessRaw(r.Context(), body); err != nil {
			if errors.IsCode(err, errors.ErrCodeUnknownSession) {
				s.writeJSON(w, http.StatusOK, receiverResponse{Success: true, Message: "event dropped"})
				return
			}
			status := errors.HTTPStatusCode(err)
			if status >= 500 {
				s.logger.WithError(err).Error("Event processing failed")
			}
			s.writeJSON(w, status, receiverResponse{Error: errors.GetUserMessage(err)})
			return
		}

		s.writeJSON(w, http.StatusOK, receiverResponse{Success: true, Message: "event processed"})
	}
}

func (s *Server) handleCreateDevice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDeviceRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		device, err := s.devices.CreateDevice(r.Context(), req.Name, req.WebhookURL, req.Note)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		// The API key is only returned here; list and get responses omit it
		s.writeJSON(w, http.StatusCreated, device)
	}
}

func (s *Server) handleListDevices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devices, stats, err := s.devices.ListDevices(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		for _, device := range devices {
			device.APIKey = ""
			device.DeviceToken = ""
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"devices": devices,
			"stats":   stats,
		})
	}
}

func deviceIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, "invalid device ID")
	}
	return id, nil
}

func (s *Server) handleGetDevice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := deviceIDFromPath(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		device, err := s.devices.GetDevice(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		device.APIKey = ""
		device.DeviceToken = ""
		s.writeJSON(w, http.StatusOK, device)
	}
}

func (s *Server) handleRetireDevice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := deviceIDFromPath(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		device, err := s.devices.GetDevice(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.devices.Retire(r.Context(), device); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"status": "retired"})
	}
}

func (s *Server) handleDeviceStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		synced, err := s.devices.SyncStatus(r.Context(), device)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":       synced.Status,
			"phone_number": synced.PhoneNumber,
			"session_id":   synced.SessionID,
		})
	}
}

func (s *Server) handleDeviceQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		qr, err := s.devices.GetQRCode(r.Context(), device)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"qr_code": qr})
	}
}

func (s *Server) handleDeviceLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		if err := s.devices.Logout(r.Context(), device); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
	}
}

func (s *Server) handleWebhookInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		stats, logs, err := s.devices.WebhookStats(r.Context(), device)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"webhook_url": device.WebhookURL,
			"stats":       stats,
			"recent":      logs,
		})
	}
}

func (s *Server) handleWebhookAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		var req webhookActionRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		switch req.Action {
		case "test":
			if err := s.devices.TestWebhook(r.Context(), device); err != nil {
				s.writeError(w, r, err)
				return
			}
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})

		case "update_url":
			if err := s.devices.UpdateWebhookURL(r.Context(), device, req.WebhookURL); err != nil {
				s.writeError(w, r, err)
				return
			}
			s.writeJSON(w, http.StatusOK, map[string]string{
				"status":      "updated",
				"webhook_url": device.WebhookURL,
			})

		case "send_custom":
			if err := s.devices.SendCustomWebhook(r.Context(), device, req.Payload); err != nil {
				s.writeError(w, r, err)
				return
			}
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})

		default:
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "unknown webhook action"))
		}
	}
}

func (s *Server) handleGetMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		messages, err := s.messages.GetMessages(r.Context(), device, limit, offset)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"messages": messages,
			"count":    len(messages),
		})
	}
}

func (s *Server) handleSendText() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		var req sendTextRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.messages.SendText(r.Context(), device, service.SendTextInput{
			To:              req.To,
			Text:            req.Text,
			QuotedMessageID: req.QuotedMessageID,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) handleSendMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		var req sendMediaRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.messages.SendMedia(r.Context(), device, service.SendMediaInput{
			To:       req.To,
			Media:    req.Media,
			MimeType: req.MimeType,
			FileName: req.FileName,
			Caption:  req.Caption,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) handleSendLocation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		var req sendLocationRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.messages.SendLocation(r.Context(), device, service.SendLocationInput{
			To:        req.To,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Name:      req.Name,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) handleSendContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFromContext(r.Context())

		var req sendContactRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.messages.SendContact(r.Context(), device, service.SendContactInput{
			To:          req.To,
			DisplayName: req.DisplayName,
			VCard:       req.VCard,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, msg)
	}
}
