// cmd/hearthctl drives a hearthd backend from the command line through
// the same engine the editor uses: edits go into a Session and reach the
// backend through its save scheduler, so what this tool does is exactly
// what a widget does.
//
// Usage:
//
//	hearthctl [-addr URL] get <path>
//	hearthctl [-addr URL] set <path> <json>
//	hearthctl [-addr URL] append <path> <entity_id>
//	hearthctl [-addr URL] remove <path> <entity_id>
//	hearthctl [-addr URL] entities [query]
//	hearthctl [-addr URL] watch
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hearthhq/hearth/internal/client"
	"github.com/hearthhq/hearth/internal/entity"
	"github.com/hearthhq/hearth/internal/event"
	"github.com/hearthhq/hearth/internal/form"
	"github.com/hearthhq/hearth/internal/session"
	"github.com/hearthhq/hearth/internal/settings"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("hearthctl: ")

	addr := flag.String("addr", "http://127.0.0.1:8080", "hearthd base URL")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	c := client.New(*addr)

	var err error
	switch cmd := args[0]; cmd {
	case "get":
		err = runGet(ctx, c, args[1:])
	case "set":
		err = runEdit(ctx, c, args[1:], func(s *session.Session, path string, arg string) error {
			var value any
			if uerr := json.Unmarshal([]byte(arg), &value); uerr != nil {
				return fmt.Errorf("value is not valid JSON: %w", uerr)
			}
			return s.SetPath(form.DocPrimary, path, value)
		})
	case "append":
		err = runEdit(ctx, c, args[1:], func(s *session.Session, path string, arg string) error {
			return s.AppendToList(form.DocPrimary, path, arg)
		})
	case "remove":
		err = runEdit(ctx, c, args[1:], func(s *session.Session, path string, arg string) error {
			return s.RemoveFromList(form.DocPrimary, path, arg)
		})
	case "entities":
		err = runEntities(ctx, c, args[1:])
	case "watch":
		err = runWatch(ctx, c)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runGet(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <path>")
	}
	tree, err := c.FetchSettings(ctx)
	if err != nil {
		return err
	}
	v, ok := settings.Get(tree, args[0])
	if !ok {
		return fmt.Errorf("no value at %s", args[0])
	}
	return printJSON(v)
}

// runEdit fetches both documents, opens a session around them, applies
// one intent, and flushes. The save goes through the scheduler like any
// editor edit, including the server-owned strip and the restart flag.
func runEdit(ctx context.Context, c *client.Client, args []string, apply func(*session.Session, string, string) error) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: <command> <path> <value>")
	}
	primary, err := c.FetchSettings(ctx)
	if err != nil {
		return err
	}
	auxiliary, err := c.FetchAuxiliary(ctx)
	if err != nil {
		return err
	}

	var saveErr error
	s := session.New(session.Config{
		Primary:   primary,
		Auxiliary: auxiliary,
		Saver:     c,
		OnError:   func(err error) { saveErr = err },
		OnSaved: func(r client.SaveResult) {
			if r.RestartRequired {
				fmt.Println("saved; a subsystem restart is required")
			} else {
				fmt.Println("saved")
			}
		},
	})
	if err := apply(s, args[0], args[1]); err != nil {
		return err
	}
	s.Close()
	return saveErr
}

func runEntities(ctx context.Context, c *client.Client, args []string) error {
	r := entity.NewResolver(c)
	if _, err := r.Catalog(ctx); err != nil {
		return err
	}
	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	for _, rec := range r.Filter(query, nil) {
		fmt.Printf("%-30s %-14s %-10s %s\n", rec.EntityID, rec.Domain, rec.State, rec.Name)
	}
	return nil
}

func runWatch(ctx context.Context, c *client.Client) error {
	conn, _, err := websocket.Dial(ctx, c.EventsURL(), nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	for {
		var evt event.DomainEvent
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			return err
		}
		fmt.Printf("%s  %-22s %s\n", evt.OccurredAt.Format("15:04:05"), evt.EventType, evt.Summary)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
