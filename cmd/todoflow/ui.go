package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"

	"todoflow/application/notify"
	"todoflow/application/projectsync"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	boldRed = color.New(color.Bold, color.FgRed).SprintFunc()
)

// printer writes command results either for people or, with --json or
// --field, for scripts.
type printer struct {
	out   io.Writer
	json  bool
	field string
}

// emit writes v as JSON, or only the gjson path p.field of it, and falls back
// to human when neither was asked for.
func (p *printer) emit(v any, human func(w io.Writer)) error {
	if !p.json && p.field == "" {
		human(p.out)
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if p.field == "" {
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	}
	res := gjson.GetBytes(data, p.field)
	if !res.Exists() {
		return fmt.Errorf("field %q not found in output", p.field)
	}
	_, err = fmt.Fprintln(p.out, res.String())
	return err
}

// notifier prints notifications to w, one line each.
func notifier(w io.Writer) notify.Notifier {
	return notify.Func(func(n notify.Notification) {
		switch n.Type {
		case notify.Success:
			fmt.Fprintln(w, green("✓"), n.Message)
		case notify.Error:
			fmt.Fprintln(w, red("✗"), n.Message)
		default:
			fmt.Fprintln(w, cyan("•"), n.Message)
		}
	})
}

func notifyError(msg string, err error) notify.Notification {
	return notify.New(notify.Error, fmt.Sprintf("%s: %v", msg, err))
}

// syncReporter prints one line per sync attempt.
func syncReporter(w io.Writer) func(projectsync.SyncEvent) {
	return func(ev projectsync.SyncEvent) {
		label := string(ev.Outcome)
		switch ev.Outcome {
		case projectsync.OutcomeSynced, projectsync.OutcomeReconciled:
			label = green(label)
		case projectsync.OutcomeFailed, projectsync.OutcomeRejected:
			label = red(label)
		case projectsync.OutcomeDeferred:
			label = yellow(label)
		default:
			label = dim(label)
		}
		p := ev.Patch
		fmt.Fprintf(w, "%s sync %s %s\n", dim(ev.At.Format("15:04:05")), label,
			dim(fmt.Sprintf("(+%d ~%d -%d nodes, +%d -%d edges)",
				len(p.NodesToAdd), len(p.NodesToUpdate), len(p.NodesToRemove), len(p.EdgesToAdd), len(p.EdgesToRemove))))
		if ev.Err != nil {
			fmt.Fprintln(w, "  ", red(ev.Err.Error()))
		}
	}
}
