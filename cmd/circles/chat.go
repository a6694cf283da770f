package main

import (
	"bufio"
	"circles/client"
	"circles/domain/event"
	"circles/projection"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Interactive chat with live delivery",
	Long: "Opens a conversation, prints new messages as they arrive and sends every line typed.\n" +
		"Commands: /older loads history, /retry resends failed messages,\n" +
		"/typing tells the other side you are composing, /quit leaves.\n" +
		"Messages arriving in other conversations are announced with their unread count.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		conversationID, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runChat(ctx, s, conversationID)
	},
}

func runChat(ctx context.Context, s *session, conversationID int64) error {
	p := newPrinter(os.Stdout, s.cfg.UserID, s.cfg.Colours)
	chat := client.NewSession(s.log, s.api, conversationID, s.cfg.UserID, client.SessionConfig{PageSize: 30})
	defer chat.Close()

	inbox := client.NewInbox(s.api, s.cfg.UserID)
	inbox.Open(conversationID)
	defer inbox.Close()
	if err := inbox.Load(ctx); err != nil {
		p.notice("%v", err)
	}

	rt := client.NewRealtime(s.log, s.cfg.ServerURL, client.RealtimeConfig{Token: s.cfg.Token})
	if err := rt.Subscribe(ctx, event.ConversationChannel(conversationID)); err != nil {
		return err
	}
	if err := rt.Subscribe(ctx, event.UserChannel(s.cfg.UserID)); err != nil {
		return err
	}
	rt.OnReconnect(func() {
		if err := chat.Resync(ctx); err != nil {
			p.notice("resync failed: %v", err)
		}
	})
	go func() {
		if err := rt.Run(ctx); err != nil {
			p.notice("live updates stopped: %v", err)
		}
	}()

	if err := chat.Open(ctx); err != nil {
		return err
	}
	view := newChatView(p)
	view.render(chat.Messages())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var typingShown string
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-rt.Events():
			chat.HandleEvent(e)
			handleNotification(ctx, inbox, p, e)
		case <-chat.Changes():
			view.render(chat.Messages())
			if who := typingLine(chat); who != typingShown {
				typingShown = who
				if who != "" {
					p.notice("%s", who)
				}
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, chat, p, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// handleLine runs a slash command or sends the line. It reports whether to quit.
func handleLine(ctx context.Context, chat *client.Session, p *printer, line string) bool {
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/typing":
		chat.Keystroke()
	case line == "/older":
		added, err := chat.LoadOlder(ctx)
		if err != nil {
			p.notice("%v", err)
		} else if added == 0 {
			p.notice("no older messages")
		}
	case line == "/retry":
		failed := lo.Filter(chat.Messages(), func(m projection.LocalMessage, _ int) bool {
			return m.Status == projection.StatusFailed
		})
		for _, m := range failed {
			if err := chat.Retry(ctx, m.TempID); err != nil {
				p.notice("retry failed: %v", err)
			}
		}
	default:
		if _, err := chat.Send(ctx, line); err != nil {
			p.notice("not sent, type /retry: %v", err)
		}
	}
	return false
}

// handleNotification keeps the inbox current and announces messages
// that arrive in conversations other than the open one.
func handleNotification(ctx context.Context, inbox *client.Inbox, p *printer, e event.DomainEvent) {
	n, ok := e.(event.NewMessageNotification)
	if !ok {
		return
	}
	if unknown := inbox.HandleEvent(e); unknown {
		if err := inbox.Load(ctx); err != nil {
			p.notice("%v", err)
		}
	}
	unread := inbox.Unread(n.ConversationID)
	if unread == 0 {
		return
	}
	author := fmt.Sprintf("#%d", n.Message.SenderID)
	if n.Message.Sender != nil {
		author = n.Message.Sender.DisplayName()
	}
	p.notice("new message from %s in conversation %d (%d unread)", author, n.ConversationID, unread)
}

func typingLine(chat *client.Session) string {
	users := chat.TypingUsers()
	if len(users) == 0 {
		return ""
	}
	return fmt.Sprintf("%s is typing...", names(users))
}

// chatView prints each timeline entry once, and again when its status changes.
type chatView struct {
	p       *printer
	printed map[string]projection.Status
}

func newChatView(p *printer) *chatView {
	return &chatView{p: p, printed: make(map[string]projection.Status)}
}

func (v *chatView) render(messages []projection.LocalMessage) {
	for _, m := range messages {
		key := m.TempID
		if key == "" {
			key = fmt.Sprintf("id:%d", m.ID)
		}
		prev, seen := v.printed[key]
		v.printed[key] = m.Status
		if seen && (prev == m.Status || (prev == projection.StatusSending && m.Status == projection.StatusSent)) {
			continue
		}
		label := ""
		if m.Status != projection.StatusSent {
			label = string(m.Status)
		}
		v.p.message(m.Message, label)
	}
}
