package chat

import (
	"circles/domain"
	"circles/errors"
	goerrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FindOrCreateCommand opens the direct conversation between two users.
type FindOrCreateCommand struct {
	UserID        int64 `json:"userId" validate:"gt=0"`
	ParticipantID int64 `json:"participantId" validate:"gt=0"`
}

func (c FindOrCreateCommand) Validate() error {
	if err := check(c); err != nil {
		return err
	}
	if c.UserID == c.ParticipantID {
		return fmt.Errorf("%w: cannot start a conversation with yourself", errors.ErrInvalidOperation)
	}
	return nil
}

// ListMessagesCommand fetches one page strictly older than Cursor.
// A zero Limit means the default page size.
type ListMessagesCommand struct {
	ConversationID int64  `json:"conversationId" validate:"gt=0"`
	ViewerID       int64  `json:"viewerId" validate:"gt=0"`
	Cursor         *int64 `json:"cursor"`
	Limit          int    `json:"limit" validate:"gte=0"`
}

func (c ListMessagesCommand) Validate() error {
	if c.Cursor != nil && *c.Cursor <= 0 {
		return errors.NewInputError("cursor", "must be a positive message id")
	}
	return check(c)
}

type SendMessageCommand struct {
	ConversationID int64  `json:"conversationId" validate:"gt=0"`
	SenderID       int64  `json:"senderId" validate:"gt=0"`
	Content        string `json:"content" validate:"required,max=5000"`
	ClientID       string `json:"clientId" validate:"max=64"`
}

// Normalize trims content and client id before validation and storage.
func (c SendMessageCommand) Normalize() SendMessageCommand {
	c.Content = strings.TrimSpace(c.Content)
	c.ClientID = strings.TrimSpace(c.ClientID)
	return c
}

func (c SendMessageCommand) Validate() error {
	return check(c)
}

type MarkReadCommand struct {
	ConversationID int64 `json:"conversationId" validate:"gt=0"`
	ViewerID       int64 `json:"viewerId" validate:"gt=0"`
}

func (c MarkReadCommand) Validate() error {
	return check(c)
}

type SetTypingCommand struct {
	ConversationID int64 `json:"conversationId" validate:"gt=0"`
	UserID         int64 `json:"userId" validate:"gt=0"`
	IsTyping       bool  `json:"isTyping"`
}

func (c SetTypingCommand) Validate() error {
	return check(c)
}

type SearchCommand struct {
	ConversationID int64  `json:"conversationId" validate:"gt=0"`
	ViewerID       int64  `json:"viewerId" validate:"gt=0"`
	Query          string `json:"q" validate:"required,max=200"`
	Limit          int    `json:"limit" validate:"gte=0,lte=100"`
}

// Normalize trims the query text.
func (c SearchCommand) Normalize() SearchCommand {
	c.Query = strings.TrimSpace(c.Query)
	return c
}

func (c SearchCommand) Validate() error {
	return check(c)
}

// check turns the first validator failure into an InputError naming the field.
func check(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !goerrors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	fe := fieldErrors[0]
	return errors.NewInputError(fe.Field(), reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Field() == "content" {
			return fmt.Sprintf("must be at most %d characters", domain.MaxContentLength)
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return "must be a positive id"
	case "gte", "lte":
		return fmt.Sprintf("is out of range (%s %s)", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}
