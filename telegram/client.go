// Copyright (c) 2025 BVK Chaitanya

// Package telegram implements the chat front end of the bot. Commands are
// dispatched to cli.CmdFunc handlers with the sender's username in the
// context; the sender's username is the user identity for grids and alerts.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/notify"
	"github.com/bvk/gridbot/records"
	"github.com/bvk/gridbot/syncmap"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type CmdFunc = cli.CmdFunc

type Command struct {
	Purpose string
	Handler CmdFunc
}

type senderKey struct{}

// WithSender returns a context that carries the command sender's username.
func WithSender(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, senderKey{}, user)
}

// Sender returns the username of the user who sent the command being handled.
func Sender(ctx context.Context) string {
	if v, ok := ctx.Value(senderKey{}).(string); ok {
		return v
	}
	return ""
}

type Client struct {
	cg ctxutil.CloseGroup

	db kv.Database

	mu sync.Mutex

	bot *bot.Bot

	self *models.User

	secrets *Secrets

	state *records.TelegramState

	commandMap syncmap.Map[string, *Command]
}

var start = time.Now()

func stateKey(botName string) string {
	return path.Join("/telegram", botName, "state")
}

func New(ctx context.Context, db kv.Database, secrets *Secrets) (*Client, error) {
	if err := secrets.Check(); err != nil {
		return nil, err
	}

	c := &Client{
		db:      db,
		secrets: secrets.Clone(),
	}

	b, err := bot.New(secrets.BotToken, bot.WithDefaultHandler(c.handler))
	if err != nil {
		return nil, err
	}
	c.bot = b

	self, err := b.GetMe(ctx)
	if err != nil {
		return nil, err
	}
	c.self = self

	state, err := kvutil.GetDB[records.TelegramState](ctx, db, stateKey(self.Username))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		state = &records.TelegramState{
			UserChatIDMap: make(map[string]int64),
		}
	}
	c.state = state

	c.commandMap.Store("uptime", &Command{
		Purpose: "Prints gridbot uptime",
		Handler: c.uptime,
	})
	c.commandMap.Store("version", &Command{
		Purpose: "Prints version information",
		Handler: c.version,
	})

	if err := c.setCommands(ctx); err != nil {
		return nil, err
	}

	c.cg.Go(func(ctx context.Context) {
		c.bot.Start(ctx)
	})
	return c, nil
}

func (c *Client) Close() error {
	c.cg.Close()
	return nil
}

func (c *Client) BotUserName() string {
	return c.self.Username
}

func (c *Client) OwnerUserName() string {
	return c.secrets.OwnerID
}

// AddCommand registers a command handler. Handlers find the sender with the
// Sender function and write their reply to cli.Stdout.
func (c *Client) AddCommand(ctx context.Context, name, purpose string, handler CmdFunc) error {
	if len(name) == 0 || len(purpose) == 0 || handler == nil {
		return os.ErrInvalid
	}
	cdata := &Command{
		Purpose: purpose,
		Handler: handler,
	}
	if _, loaded := c.commandMap.LoadOrStore(name, cdata); loaded {
		return os.ErrExist
	}
	return c.setCommands(ctx)
}

func (c *Client) setCommands(ctx context.Context) error {
	ok, err := c.bot.SetMyCommands(ctx, c.commands())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("could not set bot commands")
	}
	return nil
}

func (c *Client) commands() *bot.SetMyCommandsParams {
	var cmds []models.BotCommand
	for cmd, cdata := range c.commandMap.Range {
		cmds = append(cmds, models.BotCommand{
			Command:     cmd,
			Description: cdata.Purpose,
		})
	}
	slices.SortFunc(cmds, func(a, b models.BotCommand) int {
		return strings.Compare(a.Command, b.Command)
	})
	return &bot.SetMyCommandsParams{Commands: cmds}
}

// parseCommand splits a message into the command name and its arguments. A
// "@botname" suffix on the command is dropped.
func parseCommand(msg *models.Message) (string, []string, error) {
	if msg == nil || len(msg.Entities) == 0 {
		return "", nil, os.ErrInvalid
	}
	entity := msg.Entities[0]
	if entity.Type != models.MessageEntityTypeBotCommand || entity.Offset != 0 {
		return "", nil, os.ErrInvalid
	}
	if len(msg.Text) < entity.Length || entity.Length < 2 || msg.Text[0] != '/' {
		return "", nil, os.ErrInvalid
	}
	cmd := msg.Text[1:entity.Length]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	args := strings.Fields(msg.Text[entity.Length:])
	return cmd, args, nil
}

func (c *Client) isValidUser(user string) bool {
	return c.secrets.IsUser(user)
}

// Notify implements notify.Sink. Events are delivered to the chat of the
// event's user. Events without a user, or for a user without a known chat,
// go to the owner.
func (c *Client) Notify(ctx context.Context, e *notify.Event) error {
	return c.send(ctx, e.User, e.Time, e.String())
}

// SendMessage sends a message to the owner and all other users.
func (c *Client) SendMessage(ctx context.Context, at time.Time, text string) error {
	var errs []error
	for _, user := range c.secrets.Users() {
		if err := c.send(ctx, user, at, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) chatID(user string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cid, ok := c.state.UserChatIDMap[user]; ok {
		return cid, true
	}
	cid, ok := c.state.UserChatIDMap[c.secrets.OwnerID]
	return cid, ok
}

func (c *Client) send(ctx context.Context, user string, at time.Time, text string) error {
	cid, ok := c.chatID(user)
	if !ok {
		return fmt.Errorf("no chat id is known for user %q or the owner: %w", user, os.ErrNotExist)
	}
	msg := at.Format("2006-01-02 15:04:05 MST") + " " + text
	if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: cid, Text: msg}); err != nil {
		return fmt.Errorf("could not send telegram message to %q: %w", user, err)
	}
	return nil
}

func (c *Client) handler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if b != c.bot {
		slog.Error("handler invoked with invalid bot value", "want", c.bot, "got", b)
		return
	}
	if update.Message == nil || update.Message.From == nil {
		return
	}

	sender := update.Message.From.Username
	if !c.isValidUser(sender) {
		slog.Warn("received message from unknown user (ignored)", "sender", sender, "message", update.Message.Text)
		return
	}

	if err := c.updateChatIDs(ctx, update); err != nil {
		slog.Warn("could not update chat id values (ignored)", "err", err)
	}

	if err := c.respond(ctx, update); err != nil {
		slog.Error("could not respond to user command (ignored)", "user", sender, "err", err)
		return
	}
}

func (c *Client) respond(ctx context.Context, update *models.Update) (status error) {
	True := true

	var reply string
	defer func() {
		if len(reply) != 0 {
			p := &bot.SendMessageParams{
				ChatID: update.Message.Chat.ID,
				Text:   reply,
				ReplyParameters: &models.ReplyParameters{
					MessageID: update.Message.ID,
				},
				LinkPreviewOptions: &models.LinkPreviewOptions{
					IsDisabled: &True,
				},
			}
			if _, err := c.bot.SendMessage(ctx, p); err != nil {
				status = err
			}
		}
	}()

	defer func() {
		if status != nil {
			reply = status.Error()
			status = nil
		}
	}()

	cmd, args, err := parseCommand(update.Message)
	if err != nil {
		return fmt.Errorf("not a command; try /help")
	}
	cdata, ok := c.commandMap.Load(cmd)
	if !ok {
		return fmt.Errorf("unknown command /%s", cmd)
	}

	sender := update.Message.From.Username
	var sb strings.Builder
	hctx := WithSender(cli.WithStdout(ctx, &sb), sender)
	if err := cdata.Handler(hctx, args); err != nil {
		slog.Error("could not handle user command (ignored)", "cmd", cmd, "user", sender, "err", err)
		return err
	}

	reply = sb.String()
	return nil
}

func (c *Client) updateChatIDs(ctx context.Context, update *models.Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender := update.Message.From.Username
	if id, ok := c.state.UserChatIDMap[sender]; !ok || id != update.Message.Chat.ID {
		c.state.UserChatIDMap[sender] = update.Message.Chat.ID
		slog.Info("updating chat id of an authorized user", "user", sender, "chat-id", update.Message.Chat.ID)

		if err := kvutil.SetDB(ctx, c.db, stateKey(c.BotUserName()), c.state); err != nil {
			slog.Error("could not save telegram state to the db", "err", err)
			return err
		}
	}
	return nil
}

func (c *Client) uptime(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)
	fmt.Fprint(stdout, Uptime(time.Since(start)))
	return nil
}

// Uptime formats a duration with a days component when it is longer than a
// day.
func Uptime(d time.Duration) string {
	const day = 24 * time.Hour
	d = d.Round(time.Second)
	if d < day {
		return d.String()
	}
	return fmt.Sprintf("%dd%v", d/day, d%day)
}

func (c *Client) version(ctx context.Context, _ []string) error {
	stdout := cli.Stdout(ctx)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return fmt.Errorf("could not read build information")
	}
	// Dependency versions can overflow the telegram message size limits.
	fmt.Fprintln(stdout, "Go: ", info.GoVersion)
	fmt.Fprintln(stdout, "Main Module Path: ", info.Main.Path)
	fmt.Fprintln(stdout, "Main Module Version: ", info.Main.Version)
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			fmt.Fprintln(stdout, s.Key, ": ", s.Value)
		}
	}
	return nil
}
