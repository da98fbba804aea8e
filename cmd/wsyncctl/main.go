package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/tfaria/wsync/internal/config"
	"github.com/tfaria/wsync/internal/lock"
	"github.com/tfaria/wsync/internal/session"
	"github.com/tfaria/wsync/internal/storage"
	"github.com/tfaria/wsync/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "stats":
		cmdStats(sessionName, *jsonFlag)
	case "chats":
		cmdChats(sessionName, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wsyncctl messages <chat-id>")
			os.Exit(1)
		}
		cmdMessages(sessionName, args[1], *jsonFlag)
	case "contacts":
		cmdContacts(sessionName, *jsonFlag)
	case "labels":
		cmdLabels(sessionName, *jsonFlag)
	case "resolve":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wsyncctl resolve <id>")
			os.Exit(1)
		}
		cmdResolve(sessionName, args[1])
	case "sessions":
		if len(args) >= 2 && args[1] == "list" {
			cmdSessionsList(*jsonFlag)
		} else {
			fmt.Fprintln(os.Stderr, "usage: wsyncctl sessions list")
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wsyncctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  stats                Show snapshot collection sizes")
	fmt.Fprintln(os.Stderr, "  chats                List chats in display order")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>   List messages of a chat")
	fmt.Fprintln(os.Stderr, "  contacts             List contacts")
	fmt.Fprintln(os.Stderr, "  labels               List labels")
	fmt.Fprintln(os.Stderr, "  resolve <id>         Resolve an id to its canonical form")
	fmt.Fprintln(os.Stderr, "  sessions list        List known sessions")
}

// loadStore restores the session's last snapshot into a fresh store,
// reading whichever backend the config selects so the output matches
// what the daemon would see on its next start.
func loadStore(sessionName string) (*store.Store, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}

	st := store.New(store.Options{})
	var backend storage.Backend = storage.NewFile()
	path := session.SnapshotPath(sessionName)
	if cfg.Snapshot.Backend == config.BackendSQLite {
		db, err := storage.OpenSQLite(session.SnapshotDBPath(sessionName))
		if err != nil {
			return nil, err
		}
		defer func() { _ = db.Close() }()
		backend, path = db, "snapshot"
	}
	if !st.ReadFrom(backend, path) {
		return nil, fmt.Errorf("no snapshot for session %q", sessionName)
	}
	return st, nil
}

func mustLoadStore(sessionName string) *store.Store {
	st, err := loadStore(sessionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cmdStats(sessionName string, jsonOut bool) {
	st := mustLoadStore(sessionName)
	stats := st.Stats()
	if jsonOut {
		outputJSON(stats)
		return
	}
	fmt.Printf("Chats:        %d\n", stats.Chats)
	fmt.Printf("Contacts:     %d\n", stats.Contacts)
	fmt.Printf("Messages:     %d\n", stats.Messages)
	fmt.Printf("Groups:       %d\n", stats.Groups)
	fmt.Printf("Labels:       %d\n", stats.Labels)
	fmt.Printf("Associations: %d\n", stats.Associations)
}

func cmdChats(sessionName string, jsonOut bool) {
	st := mustLoadStore(sessionName)
	chats := st.Chats()
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats in snapshot.")
		return
	}
	for _, c := range chats {
		marker := " "
		if c.Pinned {
			marker = "*"
		}
		name := c.Name
		if name == "" {
			name = "-"
		}
		extra := ""
		if c.UnreadCount > 0 {
			extra = fmt.Sprintf(" unread=%d", c.UnreadCount)
		}
		if c.Archived {
			extra += " archived"
		}
		fmt.Printf("%s %-44s %s%s\n", marker, c.ID, name, extra)
	}
}

func cmdMessages(sessionName, chatID string, jsonOut bool) {
	st := mustLoadStore(sessionName)
	id := st.ResolveID(chatID)
	msgs := st.Messages(id)
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Printf("No messages for chat %s.\n", id)
		return
	}
	for _, m := range msgs {
		ts := time.Unix(m.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
		sender := m.SenderID
		if m.FromMe {
			sender = "me"
		}
		body := m.Body
		if body == "" {
			body = "<" + m.Type + ">"
		}
		fmt.Printf("%s %-30s %s\n", ts, sender, body)
	}
}

func cmdContacts(sessionName string, jsonOut bool) {
	st := mustLoadStore(sessionName)
	contacts := st.Contacts()
	if jsonOut {
		outputJSON(contacts)
		return
	}
	if len(contacts) == 0 {
		fmt.Println("No contacts in snapshot.")
		return
	}
	ids := make([]string, 0, len(contacts))
	for id := range contacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := contacts[id]
		name := c.Name
		if name == "" {
			name = c.Notify
		}
		fmt.Printf("%-44s %s\n", id, name)
	}
}

func cmdLabels(sessionName string, jsonOut bool) {
	st := mustLoadStore(sessionName)
	labels := st.Labels()
	if jsonOut {
		outputJSON(labels)
		return
	}
	if len(labels) == 0 {
		fmt.Println("No labels in snapshot.")
		return
	}
	for _, l := range labels {
		state := ""
		if l.Deleted {
			state = " (deleted)"
		}
		fmt.Printf("%-8s color=%d %s%s\n", l.ID, l.Color, l.Name, state)
	}
}

func cmdResolve(sessionName, id string) {
	st := mustLoadStore(sessionName)
	fmt.Println(st.ResolveID(id))
}

func cmdSessionsList(jsonOut bool) {
	names, err := session.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	type sessionInfo struct {
		Name    string `json:"name"`
		Path    string `json:"path"`
		Running bool   `json:"running"`
		PID     int    `json:"pid,omitempty"`
	}
	infos := make([]sessionInfo, 0, len(names))
	for _, name := range names {
		held, pid := lock.Probe(session.Dir(name))
		infos = append(infos, sessionInfo{
			Name:    name,
			Path:    session.Dir(name),
			Running: held,
			PID:     pid,
		})
	}

	if jsonOut {
		outputJSON(infos)
		return
	}
	if len(infos) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range infos {
		state := "stopped"
		if s.Running {
			state = fmt.Sprintf("running pid=%d", s.PID)
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, state)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
