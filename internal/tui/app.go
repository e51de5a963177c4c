// Package tui is the terminal chat client: one project's thread, a
// composer, and a status bar driven by session snapshots.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agencykit/projectchat/internal/session"
	"github.com/agencykit/projectchat/internal/store"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App is the TUI application shell.
type App struct {
	app      *tview.Application
	thread   *tview.TextView
	composer *tview.InputField
	status   *tview.TextView

	sess   *session.Session
	selfID string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI over an opened session.
func NewApp(sess *session.Session, selfID string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:    tview.NewApplication(),
		sess:   sess,
		selfID: selfID,
		ctx:    ctx,
		cancel: cancel,
	}

	a.thread = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	a.thread.SetBorder(true).SetTitle(" messages ")

	a.status = tview.NewTextView().SetDynamicColors(true)
	a.status.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	a.composer = tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	a.composer.SetChangedFunc(func(text string) {
		if text != "" {
			a.sess.InputActivity()
		}
	})
	a.composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(a.composer.GetText())
		if text == "" {
			return
		}
		a.composer.SetText("")
		go func() {
			if err := a.sess.Send(a.ctx, text, nil); err != nil {
				a.app.QueueUpdateDraw(func() {
					a.composer.SetText(text) // keep the draft for retry
					a.renderStatus(a.sess.State(), nil, err)
				})
			}
		}()
	})

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 1, 0, true).
		AddItem(a.status, 1, 0, false)

	a.app.SetRoot(layout, true)
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			a.app.Stop()
			return nil
		}
		return event
	})

	return a
}

// Run consumes session updates until the UI exits.
func (a *App) Run() error {
	go a.consumeUpdates()
	defer a.cancel()
	return a.app.Run()
}

func (a *App) consumeUpdates() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case u := <-a.sess.Updates():
			a.app.QueueUpdateDraw(func() {
				a.renderThread(u)
				a.renderStatus(u.State, u.Typing, nil)
			})
		}
	}
}

func (a *App) renderThread(u session.Update) {
	a.thread.Clear()
	for _, e := range u.Messages {
		_, _ = fmt.Fprint(a.thread, formatEntry(e, a.selfID))
	}
	if u.NewLatest {
		a.thread.ScrollToEnd()
	}
}

func formatEntry(e session.Entry, selfID string) string {
	name := e.Message.SenderName
	if name == "" {
		name = e.Message.SenderID
	}
	color := "blue"
	if e.Message.SenderID == selfID {
		color = "green"
	}

	ts := time.UnixMilli(e.Message.CreatedAt).Format("15:04")
	body := tview.Escape(e.Message.Body)
	if e.Message.Kind == store.KindFile && e.Message.Attachment != nil {
		body = fmt.Sprintf("[yellow]⎙ %s[-] %s", tview.Escape(e.Message.Attachment.Filename), body)
	}

	suffix := ""
	if e.Pending {
		suffix = " [gray]…sending[-]"
	}
	return fmt.Sprintf("[gray]%s[-] [%s::b]%s[-:-:-] %s%s\n", ts, color, tview.Escape(name), body, suffix)
}

func (a *App) renderStatus(state session.State, typing []string, err error) {
	a.status.Clear()

	stateColor := map[session.State]string{
		session.Live:         "green",
		session.Connecting:   "yellow",
		session.Reconnecting: "yellow",
		session.Degraded:     "red",
		session.Closed:       "gray",
	}[state]

	line := fmt.Sprintf(" [%s]%s[-]", stateColor, state)
	if len(typing) > 0 {
		line += fmt.Sprintf(" | [aqua]%s typing…[-]", strings.Join(typing, ", "))
	}
	if err != nil {
		line += fmt.Sprintf(" | [red]%s[-]", tview.Escape(err.Error()))
	}
	_, _ = fmt.Fprint(a.status, line)
}
