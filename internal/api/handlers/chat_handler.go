package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/everbloom-ai/everbloom/internal/services"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

type ChatHandler struct {
	chat     services.ChatService
	messages services.MessageService
}

func NewChatHandler(chat services.ChatService, messages services.MessageService) *ChatHandler {
	return &ChatHandler{chat: chat, messages: messages}
}

type SendRequest struct {
	Content string `json:"content" binding:"required"`
	Voice   bool   `json:"voice"`
}

type SendResponse struct {
	Reply     string `json:"reply"`
	Remaining int    `json:"remaining"`
	VoiceURL  string `json:"voice_url,omitempty"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ChatHandler.Send", "invalid request body", err))
		return
	}

	reply, err := h.chat.Send(c.Request.Context(), userID, req.Content, req.Voice)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SendResponse{
		Reply:     reply.Reply,
		Remaining: reply.Remaining,
		VoiceURL:  reply.VoiceURL,
	})
}

func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	// page 0 is the most recent slice
	page := 0
	if s := c.Query("page"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			page = n
		}
	}

	pageSize := 50
	if s := c.Query("page_size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}

	msgs, hasMore, err := h.messages.Page(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":  msgs,
		"page":      page,
		"page_size": pageSize,
		"has_more":  hasMore,
	})
}
