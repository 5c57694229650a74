package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mahaj/dupahar/pkg/auth"
	"github.com/mahaj/dupahar/pkg/chatapi"
	"github.com/mahaj/dupahar/pkg/live"
	"github.com/mahaj/dupahar/pkg/model"
	"github.com/mahaj/dupahar/pkg/timeline"
)

const renderTail = 20

// typingDebouncer turns keystroke-ish activity into start/stop typing
// broadcasts: the first touch broadcasts start, and a stop follows
// after one second without further touches, so the transport is not
// chattered at on every keypress.
type typingDebouncer struct {
	engine *timeline.Engine

	mu     sync.Mutex
	active bool
	timer  *time.Timer
}

func (d *typingDebouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		d.active = true
		d.engine.StartTyping()
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(time.Second, func() {
		d.mu.Lock()
		d.active = false
		d.mu.Unlock()
		d.engine.StopTyping()
	})
}

func main() {
	gatewayAddr := flag.String("gateway", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	displayName := flag.String("name", "", "display name (defaults to user id)")
	channelID := flag.String("channel", "general", "channel id")
	dmUser := flag.String("dm", "", "user id to dm (overrides -channel)")
	flag.Parse()

	if *displayName == "" {
		*displayName = *userID
	}

	finalChannelID := *channelID
	if *dmUser != "" {
		// Sort user IDs so both sides derive the same channel ID.
		u1, u2 := *userID, *dmUser
		if u1 > u2 {
			u1, u2 = u2, u1
		}
		finalChannelID = fmt.Sprintf("dm:%s:%s", u1, u2)
	}

	log.Printf("Logging in as %s...", *userID)
	token, err := chatapi.Login(*apiAddr, *userID, *displayName)
	if err != nil {
		log.Fatal("Login failed: ", err)
	}
	claims, err := auth.ParseIdentity(token)
	if err != nil {
		log.Fatal("Bad token: ", err)
	}

	api := chatapi.New(*apiAddr, token)

	channel, err := live.Dial(*gatewayAddr, token, finalChannelID)
	if err != nil {
		log.Fatal("dial: ", err)
	}
	defer channel.Close()

	var render func()
	engine := timeline.NewEngine(timeline.Config{
		ChannelID:   finalChannelID,
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		History:     api,
		Mutations:   api,
		Live:        channel,
		OnChange:    func() { render() },
	})
	render = makeRenderer(engine, claims.UserID)

	if err := engine.Open(context.Background()); err != nil {
		log.Fatal("Failed to load conversation: ", err)
	}
	defer engine.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range channel.Events() {
			engine.HandleEvent(ev)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	typing := &typingDebouncer{engine: engine}

	go commandLoop(engine, api, typing, interrupt)

	select {
	case <-done:
	case <-interrupt:
		log.Println("interrupt")
	}
}

func commandLoop(engine *timeline.Engine, api *chatapi.Client, typing *typingDebouncer, interrupt chan os.Signal) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Print("> ")
			continue
		}
		if !strings.HasPrefix(text, "/") {
			if _, err := engine.Send(text, nil); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
			fmt.Print("> ")
			continue
		}

		cmd := strings.Fields(text)
		switch cmd[0] {
		case "/quit":
			close(interrupt)
			return
		case "/typing":
			typing.Touch()
		case "/older":
			if err := engine.LoadOlder(context.Background()); err != nil {
				fmt.Printf("history fetch failed: %v\n", err)
			} else if engine.HistoryExhausted() {
				fmt.Println("(start of conversation)")
			}
		case "/react", "/unreact":
			id, rest, ok := idArg(cmd)
			if !ok || rest == "" {
				fmt.Printf("usage: %s <message-id> <emoji>\n", cmd[0])
				break
			}
			var err error
			if cmd[0] == "/react" {
				err = engine.React(id, rest)
			} else {
				err = engine.Unreact(id, rest)
			}
			if err != nil {
				fmt.Printf("%s failed: %v\n", cmd[0][1:], err)
			}
		case "/pin", "/unpin", "/del":
			id, _, ok := idArg(cmd)
			if !ok {
				fmt.Printf("usage: %s <message-id>\n", cmd[0])
				break
			}
			var err error
			switch cmd[0] {
			case "/pin":
				err = engine.Pin(id)
			case "/unpin":
				err = engine.Unpin(id)
			case "/del":
				err = engine.Delete(id)
			}
			if err != nil {
				fmt.Printf("%s failed: %v\n", cmd[0][1:], err)
			}
		case "/reply", "/edit":
			id, rest, ok := idArg(cmd)
			if !ok || rest == "" {
				fmt.Printf("usage: %s <message-id> <text>\n", cmd[0])
				break
			}
			var err error
			if cmd[0] == "/reply" {
				_, err = engine.Reply(rest, nil, id)
			} else {
				err = engine.Edit(id, rest)
			}
			if err != nil {
				fmt.Printf("%s failed: %v\n", cmd[0][1:], err)
			}
		case "/retry":
			id, _, ok := idArg(cmd)
			if !ok {
				fmt.Println("usage: /retry <local-id>")
				break
			}
			if _, err := engine.RetryFailed(id); err != nil {
				fmt.Printf("retry failed: %v\n", err)
			}
		case "/file":
			if len(cmd) < 2 {
				fmt.Println("usage: /file <path> [caption]")
				break
			}
			sendFile(engine, api, cmd[1], strings.Join(cmd[2:], " "))
		case "/pins":
			for _, m := range engine.Pinned() {
				fmt.Printf("  [%d] %s: %s\n", m.ID, m.UserID, m.Content)
			}
		case "/who":
			users, err := api.ChannelUsers(context.Background(), engine.ChannelID())
			if err != nil {
				fmt.Printf("presence failed: %v\n", err)
				break
			}
			fmt.Printf("online: %s\n", strings.Join(users, ", "))
		case "/convs":
			convs, err := api.Conversations(context.Background())
			if err != nil {
				fmt.Printf("conversations failed: %v\n", err)
				break
			}
			for _, c := range convs {
				fmt.Printf("  %s (unread %d)\n", c.OtherUserID, c.UnreadCount)
			}
		case "/read":
			if len(cmd) < 2 {
				fmt.Println("usage: /read <user-id>")
				break
			}
			if err := api.MarkRead(context.Background(), cmd[1]); err != nil {
				fmt.Printf("mark read failed: %v\n", err)
			}
		default:
			fmt.Println("commands: /typing /older /react /unreact /pin /unpin /del /reply /edit /retry /file /pins /who /convs /read /quit")
		}
		fmt.Print("> ")
	}
}

func idArg(cmd []string) (int64, string, bool) {
	if len(cmd) < 2 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(cmd[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, strings.Join(cmd[2:], " "), true
}

func sendFile(engine *timeline.Engine, api *chatapi.Client, path, caption string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("open failed: %v\n", err)
		return
	}
	defer f.Close()
	att, err := api.UploadAttachment(context.Background(), filepath.Base(path), "", f)
	if err != nil {
		fmt.Printf("upload failed: %v\n", err)
		return
	}
	if _, err := engine.Send(caption, att); err != nil {
		fmt.Printf("send failed: %v\n", err)
	}
}

// makeRenderer repaints the window tail after every engine change.
func makeRenderer(engine *timeline.Engine, selfID string) func() {
	var mu sync.Mutex
	return func() {
		mu.Lock()
		defer mu.Unlock()

		window := engine.Snapshot()
		start := 0
		if len(window) > renderTail {
			start = len(window) - renderTail
		}

		fmt.Print("\r")
		for _, m := range window[start:] {
			line := formatMessage(engine, m, selfID)
			fmt.Println(line)
		}
		if typers := engine.TypingUsers(); len(typers) > 0 {
			names := make([]string, len(typers))
			for i, t := range typers {
				names[i] = t.DisplayName
			}
			fmt.Printf("  %s typing...\n", strings.Join(names, ", "))
		}
		fmt.Print("> ")
	}
}

func formatMessage(engine *timeline.Engine, m model.Message, selfID string) string {
	var b strings.Builder

	switch m.State {
	case model.StatePending:
		fmt.Fprintf(&b, "[~%d] ", m.LocalID)
	case model.StateFailed:
		fmt.Fprintf(&b, "[!%d] ", m.LocalID)
	default:
		fmt.Fprintf(&b, "[%d] ", m.ID)
	}

	fmt.Fprintf(&b, "%s: %s", m.UserID, m.Content)
	if m.Attachment != nil {
		fmt.Fprintf(&b, " <%s %dB>", m.Attachment.Name, m.Attachment.Size)
	}
	if m.ReplyTo != 0 {
		fmt.Fprintf(&b, " (reply to %d)", m.ReplyTo)
	}
	if m.Edited {
		b.WriteString(" (edited)")
	}
	if m.Pinned {
		b.WriteString(" *pinned*")
	}
	for _, g := range engine.Reactions(m.ID) {
		mark := ""
		if g.Me {
			mark = "+"
		}
		fmt.Fprintf(&b, " [%s%s %d]", mark, g.Emoji, g.Count)
	}
	if m.State == model.StateFailed {
		fmt.Fprintf(&b, "  FAILED (%s), /retry %d", m.FailReason, m.LocalID)
	}
	return b.String()
}
