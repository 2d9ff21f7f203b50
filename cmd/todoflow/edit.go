package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"todoflow/application/graph"
	"todoflow/application/projectsync"
	"todoflow/domain/core/entities"
	"todoflow/domain/core/valueobjects"
	"todoflow/infrastructure/credential"
)

const maxEventLine = 1 << 20

// canvas is the part of a sync session the event stream drives.
type canvas interface {
	AddNode(title string, pos valueobjects.Position) (entities.TaskNode, error)
	Connect(source, target string) (entities.TaskEdge, error)
	ApplyNodeChanges(changes []graph.NodeChange) ([]entities.TaskNode, error)
	ApplyEdgeChanges(changes []graph.EdgeChange) ([]entities.TaskEdge, error)
	UpdateNodeData(id string, change graph.DataChange) (entities.TaskNode, error)
	Flush(ctx context.Context) error
}

var _ canvas = (*projectsync.Session)(nil)

type addEvent struct {
	Title string  `json:"title"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type connectEvent struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type dataEvent struct {
	ID string `json:"id"`
	graph.DataChange
}

func newEditCmd(a *app) *cobra.Command {
	var quietWindow time.Duration
	cmd := &cobra.Command{
		Use:   "edit <projectID>",
		Short: "Edit a project's graph from JSON-lines canvas events on stdin",
		Long: `Reads one canvas event per line from stdin and syncs the result to the
server after each quiet window. Supported events:

  {"op":"add","title":"Write tests","x":120,"y":80}
  {"op":"connect","source":"<nodeID>","target":"<nodeID>"}
  {"op":"nodes","changes":[{"type":"position","id":"<nodeID>","position":{"x":1,"y":2}}]}
  {"op":"edges","changes":[{"type":"remove","id":"<edgeID>"}]}
  {"op":"data","id":"<nodeID>","title":"Renamed","status":"DONE"}
  {"op":"flush"}

Blank lines and lines starting with # are ignored. Pending edits are
flushed at end of input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx, nil); err != nil {
				return err
			}
			if _, err := a.requireLogin(ctx); err != nil {
				return err
			}
			if cmd.Flags().Changed("quiet-window") {
				a.cfg.Sync.QuietWindow = quietWindow
			}
			return a.edit(ctx, args[0])
		},
	}
	cmd.Flags().DurationVar(&quietWindow, "quiet-window", time.Second, "idle time before edits are synced")
	return cmd
}

func (a *app) edit(ctx context.Context, projectID string) error {
	if err := a.client.Preload(ctx); err != nil {
		return err
	}
	sess, err := projectsync.Open(ctx, a.client, projectID, projectsync.Options{
		QuietWindow:  a.cfg.Sync.QuietWindow,
		FlushOnClose: a.cfg.Sync.FlushOnClose,
		Logger:       a.logger,
		Notifier:     a.notifier,
		OnSync:       syncReporter(a.errOut),
	})
	if err != nil {
		return err
	}

	if repo, ok := a.repo.(*credential.FileRepository); ok {
		if err := repo.Watch(ctx, a.store.Invalidate); err != nil {
			a.logger.Warn("Credential changes from other processes will not be seen", zap.Error(err))
		}
	}

	p := sess.Project()
	fmt.Fprintf(a.errOut, "%s %s %s\n", cyan("Editing"), bold(p.Name), dim(fmt.Sprintf("(%d nodes, %d edges)", len(p.Nodes), len(p.Edges))))

	readErr := a.readEvents(ctx, sess)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.API.Timeout)
	defer cancel()
	closeErr := sess.Close(closeCtx)

	final := sess.Project()
	if err := a.printer.emit(final, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s: %d nodes, %d edges\n", green("✓"), bold(final.Name), len(final.Nodes), len(final.Edges))
	}); err != nil {
		return err
	}
	return errors.Join(readErr, closeErr)
}

// readEvents applies events until end of input or ctx is done. A bad line
// is reported and skipped.
func (a *app) readEvents(ctx context.Context, c canvas) error {
	scanner := bufio.NewScanner(a.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	lineNo := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		result, err := applyEvent(ctx, c, line)
		if err != nil {
			fmt.Fprintf(a.errOut, "%s line %d: %v\n", red("✗"), lineNo, err)
			continue
		}
		if result != nil && (a.printer.json || a.printer.field != "") {
			if err := a.printer.emit(result, nil); err != nil {
				fmt.Fprintf(a.errOut, "%s line %d: %v\n", red("✗"), lineNo, err)
			}
		} else if n, ok := result.(entities.TaskNode); ok {
			fmt.Fprintf(a.errOut, "%s node %s %s\n", green("+"), cyan(n.ID), n.Data.Title)
		} else if e, ok := result.(entities.TaskEdge); ok {
			fmt.Fprintf(a.errOut, "%s edge %s %s → %s\n", green("+"), cyan(e.ID), e.Source, e.Target)
		}
	}
	return scanner.Err()
}

// applyEvent decodes one JSON-lines event and applies it to c. It returns
// the created node or edge for add and connect events, the edited node for
// data events, and nil otherwise.
func applyEvent(ctx context.Context, c canvas, line string) (any, error) {
	if !gjson.Valid(line) {
		return nil, errors.New("not valid JSON")
	}
	op := gjson.Get(line, "op").String()
	switch op {
	case "add":
		var ev addEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("add: %w", err)
		}
		if strings.TrimSpace(ev.Title) == "" {
			return nil, errors.New("add: title is required")
		}
		return c.AddNode(ev.Title, valueobjects.Position{X: ev.X, Y: ev.Y})

	case "connect":
		var ev connectEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		return c.Connect(ev.Source, ev.Target)

	case "nodes":
		var changes []graph.NodeChange
		if err := json.Unmarshal([]byte(gjson.Get(line, "changes").Raw), &changes); err != nil {
			return nil, fmt.Errorf("nodes: %w", err)
		}
		_, err := c.ApplyNodeChanges(changes)
		return nil, err

	case "edges":
		var changes []graph.EdgeChange
		if err := json.Unmarshal([]byte(gjson.Get(line, "changes").Raw), &changes); err != nil {
			return nil, fmt.Errorf("edges: %w", err)
		}
		_, err := c.ApplyEdgeChanges(changes)
		return nil, err

	case "data":
		var ev dataEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return c.UpdateNodeData(ev.ID, ev.DataChange)

	case "flush":
		return nil, c.Flush(ctx)

	case "":
		return nil, errors.New(`missing "op"`)
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
}
