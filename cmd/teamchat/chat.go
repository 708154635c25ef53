package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/client"
	"github.com/teamchat/teamchat/internal/domain"
	"github.com/teamchat/teamchat/internal/logger"
	"github.com/teamchat/teamchat/internal/protocol"
	"github.com/teamchat/teamchat/internal/store"
)

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(setNameCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [channel]",
	Short: "Join a channel and chat from the terminal",
	Long: `Join a channel and chat interactively. Plain lines are sent as messages.

Commands:
  /join <channel>        switch channels
  /react <id> <emoji>    toggle a reaction on a message
  /channels              list channels with unread counts
  /who                   show presence for the current channel
  /quit                  exit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

var setNameCmd = &cobra.Command{
	Use:   "set-name <name>",
	Short: "Store the display name announced to the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Name = strings.TrimSpace(args[0])
		if err := saveConfig(cfg); err != nil {
			return err
		}
		cache, cleanup := openCache(zap.NewNop())
		defer cleanup()
		if err := client.SetUserName(cache, cfg.Name); err != nil {
			return err
		}
		fmt.Println("Name saved:", cfg.Name)
		return nil
	},
}

// openCache opens the on-disk message cache, degrading to the in-memory one
// when the disk is unavailable.
func openCache(log *zap.Logger) (store.MessageCache, func()) {
	dir, err := configDir()
	if err == nil {
		cache, perr := store.OpenPebble(filepath.Join(dir, "cache"), log)
		if perr == nil {
			return cache, func() { cache.Close() }
		}
		log.Warn("disk cache unavailable, using memory", zap.Error(perr))
	}
	mem := store.NewMemoryCache()
	return mem, func() {}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := zap.NewNop()
	if flagVerbose {
		if log, err = logger.New("debug", true); err != nil {
			return err
		}
	}

	server := firstNonEmpty(flagServer, cfg.Server, "http://localhost:4000")
	wsURL := strings.Replace(server, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1) + "/ws"

	cache, cleanup := openCache(log)
	defer cleanup()

	name := firstNonEmpty(flagName, cfg.Name, client.UserName(cache))

	// The logical user id survives reconnects and restarts.
	if cfg.UserID == "" {
		cfg.UserID = uuid.NewString()
		if err := saveConfig(cfg); err != nil {
			return err
		}
	}

	channel := "general"
	if len(args) == 1 {
		channel = args[0]
	}

	conn := client.NewConn(wsURL, log)
	session := client.NewSession(conn, cache, domain.DefaultChannels(), cfg.UserID, name, log)

	// mu guards seen and lastPresence: the callbacks run on a different
	// goroutine than the command loop below.
	var mu sync.Mutex
	seen := make(map[string]bool)
	session.OnMessages(func(msgs []domain.Message) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range msgs {
			if seen[m.ID] || m.Deleted {
				continue
			}
			seen[m.ID] = true
			fmt.Printf("[%s] %s: %s (%s)\n",
				m.CreatedAt.Local().Format("15:04"), m.UserName, m.Text, m.Status)
		}
	})

	var lastPresence []domain.User
	session.OnPresence(func(p protocol.PresencePayload) {
		mu.Lock()
		lastPresence = p.Users
		mu.Unlock()
	})
	session.OnTyping(func(p protocol.TypingPayload) {
		names := make([]string, 0, len(p.Users))
		for _, u := range p.Users {
			if u.ID != cfg.UserID {
				names = append(names, u.Name)
			}
		}
		if label := client.TypingLabel(names); label != "" {
			fmt.Println("*", label)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = session.Start(ctx)
	cancel()
	if err != nil {
		fmt.Println("Server unreachable, starting offline. Sends will be queued.")
	}
	defer session.Stop()

	session.Focus(channel)
	fmt.Printf("Joined #%s as %s. Type /quit to exit.\n", channel, name)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/channels":
			for _, ch := range session.Tracker().Channels() {
				marker := " "
				if ch.ID == session.Tracker().Focused() {
					marker = "*"
				}
				fmt.Printf("%s #%-12s %d members, %d unread\n", marker, ch.ID, ch.UserCount, ch.UnreadCount)
			}
		case line == "/who":
			mu.Lock()
			present := lastPresence
			mu.Unlock()
			online, offline := client.SplitPresence(present)
			for _, u := range online {
				fmt.Println("  ●", u.Name)
			}
			for _, u := range offline {
				last := ""
				if u.LastSeen != nil {
					last = " (last seen " + u.LastSeen.Local().Format("15:04") + ")"
				}
				fmt.Println("  ○", u.Name+last)
			}
		case strings.HasPrefix(line, "/join "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			mu.Lock()
			for id := range seen {
				delete(seen, id)
			}
			mu.Unlock()
			session.Focus(target)
			fmt.Printf("Joined #%s\n", target)
		case strings.HasPrefix(line, "/react "):
			parts := strings.Fields(line)
			if len(parts) != 3 {
				fmt.Println("usage: /react <message-id> <emoji>")
				continue
			}
			session.React(parts[1], parts[2])
		default:
			session.Typing()
			session.Send(line)
		}
	}
	return scanner.Err()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
