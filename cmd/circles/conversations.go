package main

import (
	"circles/domain"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyBefore int64
	searchLimit   int
)

func init() {
	rootCmd.AddCommand(conversationsCmd, startCmd, historyCmd, sendCmd, searchCmd, whoisCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of messages")
	historyCmd.Flags().Int64Var(&historyBefore, "before", 0, "only messages older than this id")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "number of results")
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		summaries, err := s.api.ListConversations(ctx)
		if err != nil {
			return err
		}
		renderConversations(os.Stdout, summaries)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <user-id>",
	Short: "Open the conversation with a user, creating it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		other, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		conversation, err := s.api.FindOrCreate(ctx, other)
		if err != nil {
			return err
		}
		state := "existing"
		if conversation.IsNew {
			state = "new"
		}
		fmt.Printf("Conversation %d (%s) with %s\n", conversation.ID, state, names(conversation.Participants))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Print a page of messages, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		conversationID, err := parseID(args[0])
		if err != nil {
			return err
		}
		var cursor *int64
		if historyBefore > 0 {
			cursor = &historyBefore
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		page, err := s.api.ListMessages(ctx, conversationID, cursor, historyLimit)
		if err != nil {
			return err
		}
		p := newPrinter(os.Stdout, s.cfg.UserID, s.cfg.Colours)
		for _, m := range page.Messages {
			p.message(m, "")
		}
		if page.NextCursor != nil {
			fmt.Printf("(older messages: --before %d)\n", *page.NextCursor)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		conversationID, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		m, err := s.api.SendMessage(ctx, conversationID, strings.Join(args[1:], " "), "")
		if err != nil {
			return err
		}
		fmt.Printf("Sent message %d at %s\n", m.ID, m.CreatedAt.Local().Format(time.Kitchen))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <conversation-id> <query...>",
	Short: "Full text search in a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		conversationID, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		messages, err := s.api.Search(ctx, conversationID, strings.Join(args[1:], " "), searchLimit)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			fmt.Println("No match")
			return nil
		}
		p := newPrinter(os.Stdout, s.cfg.UserID, s.cfg.Colours)
		for _, m := range messages {
			p.message(m, "")
		}
		return nil
	},
}

var whoisCmd = &cobra.Command{
	Use:   "whois <user-id>",
	Short: "Show the public profile of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		u, err := s.api.GetUser(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%d\t@%s\t%s\n", u.ID, u.Username, u.DisplayName())
		return nil
	},
}

func renderConversations(w io.Writer, summaries []domain.ConversationSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "With", "Last message", "Unread", "Updated"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	for _, s := range summaries {
		last := ""
		if s.LastMessage != nil {
			last = truncate(s.LastMessage.Content, 40)
		}
		unread := ""
		if s.UnreadCount > 0 {
			unread = strconv.Itoa(s.UnreadCount)
		}
		table.Append([]string{
			strconv.FormatInt(s.ID, 10),
			names(s.Participants),
			last,
			unread,
			s.UpdatedAt.Local().Format("Jan 2 15:04"),
		})
	}
	table.Render()
}

// printer renders messages, own ones on the right colour.
type printer struct {
	w       io.Writer
	viewer  int64
	colours bool
}

func newPrinter(w io.Writer, viewer int64, colours bool) *printer {
	return &printer{w: w, viewer: viewer, colours: colours}
}

func (p *printer) message(m domain.Message, status string) {
	author := fmt.Sprintf("#%d", m.SenderID)
	if m.Sender != nil {
		author = m.Sender.DisplayName()
	}
	style := color.New(color.FgCyan)
	if m.SenderID == p.viewer {
		author = "me"
		style = color.New(color.FgGreen)
	}
	at := "--:--"
	if !m.CreatedAt.IsZero() {
		at = m.CreatedAt.Local().Format("15:04")
	}
	header := fmt.Sprintf("[%s] %s", at, author)
	if p.colours {
		header = style.Render(header)
	}
	if status != "" {
		status = " (" + status + ")"
		if p.colours {
			status = color.New(color.FgGray).Render(status)
		}
	}
	fmt.Fprintf(p.w, "%s: %s%s\n", header, m.Content, status)
}

func (p *printer) notice(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if p.colours {
		line = color.New(color.FgYellow).Render(line)
	}
	fmt.Fprintln(p.w, line)
}

func names(users []domain.User) string {
	return strings.Join(lo.Map(users, func(u domain.User, _ int) string {
		return u.DisplayName()
	}), ", ")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("expected a positive id, got %q", raw)
	}
	return id, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
