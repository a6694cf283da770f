package server

import (
	"bytes"
	"circles/domain"
	"circles/domain/chat"
	"circles/errors"
	"circles/repositories"
	"circles/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// ChatServer serves conversations and messages for the authenticated caller.
type ChatServer struct {
	log           *slog.Logger
	conversations services.IConversationService
	messages      services.IMessageService
	users         repositories.IUserRepository
}

func NewChatServer(log *slog.Logger, conversations services.IConversationService,
	messages services.IMessageService, users repositories.IUserRepository) *ChatServer {
	return &ChatServer{log: log, conversations: conversations, messages: messages, users: users}
}

func (s *ChatServer) Register(r *mux.Router) {
	r.HandleFunc("/conversations", s.ListConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations", s.CreateConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", s.ListMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", s.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/read", s.MarkRead).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/typing", s.SetTyping).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/search", s.Search).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", s.GetUser).Methods(http.MethodGet)
}

// flexibleID accepts 42 as well as "42".
type flexibleID int64

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = json.Number(s)
	}
	if raw == "" {
		*f = 0
		return nil
	}
	id, err := strconv.ParseInt(raw.String(), 10, 64)
	if err != nil {
		return err
	}
	*f = flexibleID(id)
	return nil
}

type createConversationRequest struct {
	ParticipantID flexibleID `json:"participantId"`
}

type sendMessageRequest struct {
	Content  string `json:"content"`
	ClientID string `json:"clientId"`
}

type typingRequest struct {
	IsTyping bool `json:"isTyping"`
}

type successResponse struct {
	Success bool       `json:"success"`
	ReadAt  *time.Time `json:"readAt,omitempty"`
}

type searchResponse struct {
	Messages []domain.Message `json:"messages"`
}

func (s *ChatServer) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	summaries, err := s.conversations.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	if summaries == nil {
		summaries = []domain.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *ChatServer) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	var body createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.log, r, errors.NewInputError("participantId", "must be a user id"))
		return
	}
	summary, err := s.conversations.FindOrCreate(r.Context(), chat.FindOrCreateCommand{
		UserID:        userID,
		ParticipantID: int64(body.ParticipantID),
	})
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID           int64         `json:"id"`
		Participants []domain.User `json:"participants"`
		IsNew        bool          `json:"isNew"`
	}{summary.ID, summary.Participants, summary.IsNew})
}

func (s *ChatServer) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	cursor, err := queryInt(r, "cursor")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	cmd := chat.ListMessagesCommand{ConversationID: conversationID, ViewerID: userID, Cursor: cursor}
	if limit != nil {
		if *limit < 1 {
			writeError(w, s.log, r, errors.NewInputError("limit", "must be at least 1"))
			return
		}
		cmd.Limit = int(*limit)
	}

	page, err := s.messages.ListMessages(r.Context(), cmd)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *ChatServer) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	var body sendMessageRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, s.log, r, err)
		return
	}
	message, err := s.messages.SendMessage(r.Context(), chat.SendMessageCommand{
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        body.Content,
		ClientID:       body.ClientID,
	})
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (s *ChatServer) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	readAt, err := s.messages.MarkRead(r.Context(), chat.MarkReadCommand{ConversationID: conversationID, ViewerID: userID})
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, ReadAt: &readAt})
}

func (s *ChatServer) SetTyping(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	var body typingRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, s.log, r, err)
		return
	}
	err = s.messages.SetTyping(r.Context(), chat.SetTypingCommand{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       body.IsTyping,
	})
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *ChatServer) Search(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	cmd := chat.SearchCommand{ConversationID: conversationID, ViewerID: userID, Query: r.URL.Query().Get("q")}
	if limit != nil {
		cmd.Limit = int(*limit)
	}
	messages, err := s.messages.Search(r.Context(), cmd)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Messages: messages})
}

func (s *ChatServer) GetUser(w http.ResponseWriter, r *http.Request) {
	if _, err := callerID(r); err != nil {
		writeError(w, s.log, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	user, err := s.users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, s.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}
