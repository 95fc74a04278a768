// play.go
// The queue and room commands: drive the match coordinator and the room session from a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/erilali/turing/internal/auth"
	"github.com/erilali/turing/internal/conn"
	"github.com/erilali/turing/internal/endpoint"
	"github.com/erilali/turing/internal/match"
	"github.com/erilali/turing/internal/message"
	"github.com/erilali/turing/internal/room"
	"github.com/urfave/cli/v3"
)

var errGaveUp = errors.New("connection lost, giving up")

func queueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "join matchmaking and wait for a match",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "auto-accept", Usage: "accept every match as soon as it is offered"},
			&cli.BoolFlag{Name: "enter-room", Value: true, Usage: "open the game room once matched"},
			&cli.DurationFlag{Name: "chat-duration", Usage: "show a local chat clock of this length"},
		},
		Action: runQueue,
	}
}

func roomCommand() *cli.Command {
	return &cli.Command{
		Name:  "room",
		Usage: "join a game room directly",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "game", Required: true, Usage: "game id"},
			&cli.StringFlag{Name: "role", Required: true, Usage: "seat: I, A or H (W is accepted for H)"},
			&cli.DurationFlag{Name: "chat-duration", Usage: "show a local chat clock of this length"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			role, err := message.ParseRole(cmd.String("role"))
			if err != nil {
				return err
			}
			return playRoom(ctx, cmd.String("game"), role, cmd.Duration("chat-duration"), readLines(os.Stdin))
		},
	}
}

func newManager(url, phase string) *conn.Manager {
	return conn.New(conn.Options{
		URL:               url,
		MaxRetries:        rt.cfg.MaxRetries,
		ReconnectInterval: rt.cfg.ReconnectInterval,
		Logger:            rt.log.WithField("phase", phase),
	})
}

func runQueue(ctx context.Context, cmd *cli.Command) error {
	token, err := rt.token()
	if err != nil {
		return err
	}
	url, err := endpoint.Match(rt.cfg.WSBase, token)
	if err != nil {
		return err
	}

	mgr := newManager(url, "match")
	defer func() {
		mgr.Close()
		<-mgr.Done()
	}()

	autoAccept := cmd.Bool("auto-accept")
	matched := make(chan string, 1)
	gaveUp := make(chan struct{}, 1)
	var co *match.Coordinator
	var offered string // loop-owned

	co = match.New(mgr, match.Options{
		Logger:  rt.log.WithField("component", "match"),
		Journal: rt.journal,
		OnChange: func(s match.Snapshot) {
			if s.Status != match.StatusFound || s.MatchID == offered {
				return
			}
			offered = s.MatchID
			fmt.Printf("match %s found, you are %s, %ds to confirm\n", s.MatchID, describeRole(s.Role), s.Window)
			if autoAccept {
				co.Accept()
			} else {
				fmt.Println("type a to accept or d to decline")
			}
		},
		OnMatched: func(gameID string) { matched <- gameID },
		OnError:   func(detail string) { fmt.Fprintf(os.Stderr, "server: %s\n", detail) },
		OnGiveUp:  func() { gaveUp <- struct{}{} },
	})
	defer co.Close()

	mgr.Connect()
	fmt.Println("waiting for a match (q to leave)")

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			co.Leave()
			return nil
		case <-gaveUp:
			return errGaveUp
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "a", "accept":
				co.Accept()
			case "d", "decline":
				co.Decline()
			case "q", "quit", "leave":
				co.Leave()
				return nil
			}
		case gameID := <-matched:
			role := co.Snapshot().Role
			fmt.Printf("matched: game %s as %s\n", gameID, describeRole(role))
			if !cmd.Bool("enter-room") {
				return nil
			}
			// the matchmaking connection is done; the room gets its own
			co.Close()
			mgr.Close()
			<-mgr.Done()
			return playRoom(ctx, gameID, role, cmd.Duration("chat-duration"), lines)
		}
	}
}

func playRoom(ctx context.Context, gameID string, role message.Role, chatDuration time.Duration, lines <-chan string) error {
	token, err := rt.token()
	if err != nil {
		return err
	}
	url, err := endpoint.Room(rt.cfg.WSBase, gameID, role, token)
	if err != nil {
		return err
	}

	mgr := newManager(url, "room")
	defer func() {
		mgr.Close()
		<-mgr.Done()
	}()

	results := make(chan bool, 1)
	gaveUp := make(chan struct{}, 1)
	printed := 0 // loop-owned

	session, err := room.New(mgr, room.Options{
		GameID:       gameID,
		Role:         role,
		Identity:     auth.Identity(rt.token),
		ChatDuration: chatDuration,
		Logger:       rt.log.WithField("component", "room"),
		Journal:      rt.journal,
		OnChange: func(s room.Snapshot) {
			for ; printed < len(s.Transcript); printed++ {
				m := s.Transcript[printed]
				fmt.Printf("[%s] %s -> %s: %s\n", m.Stamp().Local().Format("15:04:05"), m.Sender, m.Recipient, m.Body)
			}
		},
		OnChatEnded: func() {
			fmt.Println("chat ended")
			if role == message.RoleInterrogator {
				fmt.Println("submit your verdict with /guess <ai-player-id> <human-player-id>")
			}
		},
		OnGuessResult: func(correct bool) { results <- correct },
		OnGiveUp:      func() { gaveUp <- struct{}{} },
	})
	if err != nil {
		return err
	}
	defer session.Close()

	mgr.Connect()
	recipient := message.RoleAI
	if role != message.RoleInterrogator {
		recipient = message.RoleInterrogator
	}
	fmt.Printf("joined game %s as %s, talking to %s (/to A|H, /guess, /quit)\n", gameID, describeRole(role), describeRole(recipient))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gaveUp:
			return errGaveUp
		case correct := <-results:
			if correct {
				fmt.Println("your guess was correct")
			} else {
				fmt.Println("your guess was wrong")
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			switch fields[0] {
			case "/quit":
				return nil
			case "/to":
				if len(fields) != 2 {
					fmt.Println("usage: /to A|H")
					continue
				}
				r, err := message.ParseRole(fields[1])
				if err != nil {
					fmt.Println(err)
					continue
				}
				recipient = r
			case "/guess":
				if len(fields) != 3 {
					fmt.Println("usage: /guess <ai-player-id> <human-player-id>")
					continue
				}
				if err := session.SendGuess(fields[1], fields[2]); err != nil {
					fmt.Println(err)
				}
			default:
				if err := session.SendMessage(recipient, line); err != nil {
					fmt.Println(err)
				}
			}
		}
	}
}

func describeRole(r message.Role) string {
	switch r {
	case message.RoleInterrogator:
		return "interrogator (I)"
	case message.RoleAI:
		return "AI witness (A)"
	case message.RoleHuman:
		return "human witness (H)"
	}
	return "unknown role"
}

// readLines feeds r to a channel line by line and closes it at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
