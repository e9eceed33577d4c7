package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/middleware"
	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/internal/view"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

const maxUploadBytes = 32 << 20

// MessageHandler handles message endpoints.
type MessageHandler struct {
	controller *service.Controller
	messages   *service.MessageService
	store      *store.Store
	view       *view.Bindings
	logger     *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	ctrl *service.Controller,
	messages *service.MessageService,
	st *store.Store,
	bindings *view.Bindings,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		controller: ctrl,
		messages:   messages,
		store:      st,
		view:       bindings,
		logger:     log,
	}
}

// SendMessageRequest is the JSON body of a send.
type SendMessageRequest struct {
	Message      string `json:"message"`
	AgentID      string `json:"agentId"`
	Stream       *bool  `json:"stream,omitempty"`
	IncludeFiles bool   `json:"includeFiles,omitempty"`
}

// MessageListResponse is the gateway view of a thread.
type MessageListResponse struct {
	ThreadID  string          `json:"threadId"`
	Messages  []model.Message `json:"messages"`
	IsSending bool            `json:"isSending"`
}

// SendMessageResponse is the thread view after a send settles. Error is set
// when the send failed while streaming.
type SendMessageResponse struct {
	MessageListResponse
	Error string `json:"error,omitempty"`
}

// List handles GET /api/v1/threads/{threadID}/messages. Messages are fetched
// from the backend on first use or when ?refresh=true.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	threadID, ok := threadParam(w, r, h.store)
	if !ok {
		return
	}

	if r.URL.Query().Get("refresh") == "true" || h.store.Revision(store.ChangeMessages, "", threadID) == 0 {
		if err := h.messages.Load(r.Context(), threadID); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, h.threadView(threadID))
}

func (h *MessageHandler) threadView(threadID string) MessageListResponse {
	messages := h.view.Messages(threadID)
	if messages == nil {
		messages = []model.Message{}
	}
	return MessageListResponse{
		ThreadID:  threadID,
		Messages:  messages,
		IsSending: h.view.IsSending(threadID),
	}
}

// Send handles POST /api/v1/projects/{projectID}/messages. The request
// returns once the send settles; progress is visible on the events stream
// meanwhile. Streaming failures are reported in the returned thread view,
// not as an error status.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}

	req, opts, err := decodeSend(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := middleware.ValidateMessageContent(req.Message, len(opts.Files) > 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateID("agent", req.AgentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	threadID, err := h.controller.SendMessage(r.Context(), projectID, req.AgentID, req.Message, opts)
	if err != nil {
		h.logger.Warn("send failed",
			zap.String("project_id", projectID),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeServiceError(w, err)
		return
	}

	resp := SendMessageResponse{MessageListResponse: h.threadView(threadID)}
	if n := len(resp.Messages); n > 0 {
		resp.Error = resp.Messages[n-1].Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeSend reads a JSON or multipart send. Streaming is the default.
func decodeSend(r *http.Request) (*SendMessageRequest, service.SendOptions, error) {
	req := &SendMessageRequest{}
	opts := service.SendOptions{Stream: true}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, opts, fmt.Errorf("invalid multipart body")
		}
		req.Message = r.FormValue("message")
		req.AgentID = r.FormValue("agentId")
		if v := r.FormValue("stream"); v != "" {
			stream, err := strconv.ParseBool(v)
			if err != nil {
				return nil, opts, fmt.Errorf("invalid stream flag")
			}
			opts.Stream = stream
		}
		opts.IncludeFiles, _ = strconv.ParseBool(r.FormValue("includeFiles"))

		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				return nil, opts, fmt.Errorf("failed to read upload %s", fh.Filename)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, opts, fmt.Errorf("failed to read upload %s", fh.Filename)
			}
			opts.Files = append(opts.Files, model.Attachment{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
		return req, opts, nil
	}

	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, opts, fmt.Errorf("invalid request body")
	}
	if req.Stream != nil {
		opts.Stream = *req.Stream
	}
	opts.IncludeFiles = req.IncludeFiles
	return req, opts, nil
}
