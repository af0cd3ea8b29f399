package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/hearthhq/hearth/internal/event"
	"github.com/hearthhq/hearth/internal/eventbus"
	"github.com/hearthhq/hearth/internal/settings"
	"github.com/hearthhq/hearth/internal/store"
)

// command executes one parsed console line. args excludes the verb.
type command struct {
	usage string
	help  string
	run   func(ctx context.Context, h *Handler, args []string) (ResultData, error)
}

// Handler manages WebSocket connections for the console.
type Handler struct {
	store    store.Store
	bus      *eventbus.Bus
	commands map[string]command
}

// NewHandler creates a console handler over the given store.
func NewHandler(st store.Store, bus *eventbus.Bus) *Handler {
	h := &Handler{store: st, bus: bus}
	h.commands = map[string]command{
		"get": {
			usage: "get <doc> [path]",
			help:  "print a document or one subtree of it",
			run:   runGet,
		},
		"set": {
			usage: "set <doc> <path> <json>",
			help:  "overwrite one value and persist the document",
			run:   runSet,
		},
		"del": {
			usage: "del <doc> <path>",
			help:  "remove one value and persist the document",
			run:   runDel,
		},
		"entities": {
			usage: "entities [query]",
			help:  "list the entity catalog, optionally filtered by substring",
			run:   runEntities,
		},
		"state": {
			usage: "state <entity_id> <state>",
			help:  "record an entity state transition",
			run:   runState,
		},
		"help": {
			usage: "help",
			help:  "list commands",
			run:   runHelp,
		},
	}
	return h
}

// ServeHTTP upgrades to WebSocket and runs the message loop.
// GET /v1/console
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("console: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	h.send(ctx, conn, ServerMessage{
		Type: "session",
		Data: SessionData{
			SessionID: uuid.New().String(),
			Commands:  h.commandNames(),
		},
	})

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("console: connection closed: %v", websocket.CloseStatus(err))
			}
			return
		}

		switch msg.Type {
		case "execute":
			h.handleExecute(ctx, conn, msg)
		case "ping":
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Handler) handleExecute(ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	var data ExecuteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid execute data")
		return
	}

	result, err := h.Execute(ctx, data.Command)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "command_failed", err.Error())
		return
	}
	h.send(ctx, conn, ServerMessage{Type: "result", RequestID: msg.ID, Data: result})
}

// Execute parses and runs one command line. Exported so tests can drive
// the console without a socket.
func (h *Handler) Execute(ctx context.Context, line string) (ResultData, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ResultData{}, fmt.Errorf("empty command")
	}
	cmd, ok := h.commands[fields[0]]
	if !ok {
		return ResultData{}, fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return cmd.run(ctx, h, fields[1:])
}

func (h *Handler) commandNames() []string {
	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		log.Printf("console: send: %v", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: message},
	})
}

func (h *Handler) loadDocument(ctx context.Context, name string) (settings.Tree, error) {
	if name != store.DocSettings && name != store.DocHousehold {
		return nil, fmt.Errorf("unknown document %q", name)
	}
	doc, ok, err := h.store.LoadDocument(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s document missing", name)
	}
	return doc, nil
}

func runGet(ctx context.Context, h *Handler, args []string) (ResultData, error) {
	if len(args) < 1 || len(args) > 2 {
		return ResultData{}, fmt.Errorf("usage: get <doc> [path]")
	}
	doc, err := h.loadDocument(ctx, args[0])
	if err != nil {
		return ResultData{}, err
	}
	if len(args) == 1 {
		return ResultData{Value: doc}, nil
	}
	v, ok := settings.Get(doc, args[1])
	if !ok {
		return ResultData{}, fmt.Errorf("no value at %s", args[1])
	}
	return ResultData{Value: v}, nil
}

func runSet(ctx context.Context, h *Handler, args []string) (ResultData, error) {
	if len(args) < 3 {
		return ResultData{}, fmt.Errorf("usage: set <doc> <path> <json>")
	}
	doc, err := h.loadDocument(ctx, args[0])
	if err != nil {
		return ResultData{}, err
	}
	// The value may contain spaces; everything after the path is JSON.
	var value any
	if err := json.Unmarshal([]byte(strings.Join(args[2:], " ")), &value); err != nil {
		return ResultData{}, fmt.Errorf("value is not valid JSON: %w", err)
	}
	if err := settings.Set(doc, args[1], value); err != nil {
		return ResultData{}, err
	}
	if err := h.store.SaveDocument(ctx, args[0], doc); err != nil {
		return ResultData{}, err
	}
	h.bus.Publish(ctx, event.NewSettingsSaved(args[0], false))
	return ResultData{Message: fmt.Sprintf("%s.%s updated", args[0], args[1])}, nil
}

func runDel(ctx context.Context, h *Handler, args []string) (ResultData, error) {
	if len(args) != 2 {
		return ResultData{}, fmt.Errorf("usage: del <doc> <path>")
	}
	doc, err := h.loadDocument(ctx, args[0])
	if err != nil {
		return ResultData{}, err
	}
	if _, ok := settings.Get(doc, args[1]); !ok {
		return ResultData{}, fmt.Errorf("no value at %s", args[1])
	}
	settings.Delete(doc, args[1])
	if err := h.store.SaveDocument(ctx, args[0], doc); err != nil {
		return ResultData{}, err
	}
	h.bus.Publish(ctx, event.NewSettingsSaved(args[0], false))
	return ResultData{Message: fmt.Sprintf("%s.%s removed", args[0], args[1])}, nil
}

func runEntities(ctx context.Context, h *Handler, args []string) (ResultData, error) {
	records, err := h.store.ListEntities(ctx)
	if err != nil {
		return ResultData{}, err
	}
	if len(args) > 0 {
		query := strings.ToLower(strings.Join(args, " "))
		filtered := records[:0]
		for _, rec := range records {
			if strings.Contains(strings.ToLower(rec.EntityID), query) ||
				strings.Contains(strings.ToLower(rec.Name), query) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	return ResultData{Value: records}, nil
}

func runState(ctx context.Context, h *Handler, args []string) (ResultData, error) {
	if len(args) != 2 {
		return ResultData{}, fmt.Errorf("usage: state <entity_id> <state>")
	}
	ok, err := h.store.UpdateEntityState(ctx, args[0], args[1])
	if err != nil {
		return ResultData{}, err
	}
	if !ok {
		return ResultData{}, fmt.Errorf("unknown entity %s", args[0])
	}
	h.bus.Publish(ctx, event.NewEntityStateChanged(args[0], args[1]))
	return ResultData{Message: args[0] + " -> " + args[1]}, nil
}

func runHelp(_ context.Context, h *Handler, _ []string) (ResultData, error) {
	lines := make([]string, 0, len(h.commands))
	for _, name := range h.commandNames() {
		cmd := h.commands[name]
		lines = append(lines, fmt.Sprintf("%-28s %s", cmd.usage, cmd.help))
	}
	return ResultData{Value: lines}, nil
}
