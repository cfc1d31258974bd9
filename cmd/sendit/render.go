package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sendit/internal/queue"
	"sendit/internal/reconcile"
)

const progressBarWidth = 20

var titleCaser = cases.Title(language.English)

// queueTitle returns the heading for a queue, e.g. "Outbound queue".
func queueTitle(id queue.ID) string {
	return titleCaser.String(string(id)) + " queue"
}

func progressBar(percent float64, width int) string {
	percent = queue.ClampProgress(percent)
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), percent)
}

func formatSpeed(item queue.Item) string {
	if item.Done || item.Speed <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(item.BytesPerSecond())) + "/s"
}

func itemStatus(id queue.ID, item queue.Item) (string, statusKind) {
	switch {
	case item.Done:
		return "done", statusOK
	case item.Cancelling:
		return "cancelling", statusWarn
	case item.Progress <= 0:
		return "queued", statusInfo
	case id == queue.Inbound:
		return "receiving", statusInfo
	default:
		return "sending", statusInfo
	}
}

// renderQueue draws one queue as a table. Empty queues render as a single line.
func renderQueue(snap queue.Snapshot, colorize bool) string {
	var b strings.Builder
	b.WriteString(sectionHeader(queueTitle(snap.Queue), colorize))
	if snap.Len() == 0 {
		b.WriteString("(empty)\n")
		return b.String()
	}

	rows := make([][]string, 0, snap.Len())
	for _, item := range snap.Items {
		status, kind := itemStatus(snap.Queue, item)
		rows = append(rows, []string{
			item.Key,
			humanize.Bytes(item.Size),
			progressBar(item.Progress, progressBarWidth),
			formatSpeed(item),
			paint(status, kind.color(), colorize),
			item.Path,
		})
	}
	b.WriteString(renderTable([]column{
		textCol("Name"), numCol("Size"), textCol("Progress"), numCol("Speed"), textCol("Status"), pathCol("Path"),
	}, rows))
	b.WriteByte('\n')
	b.WriteString(queueSummary(snap))
	b.WriteByte('\n')
	return b.String()
}

func queueSummary(snap queue.Snapshot) string {
	var total, moved uint64
	for _, item := range snap.Items {
		total += item.Size
		moved += item.TransferredBytes()
	}
	return fmt.Sprintf("%d of %d done, %s of %s",
		snap.Len()-snap.Active(), snap.Len(),
		humanize.Bytes(moved), humanize.Bytes(total))
}

// renderState draws both queues and, when present, the drop preview.
func renderState(state queue.State, colorize bool) string {
	var b strings.Builder
	b.WriteString(renderQueue(state.Outbound, colorize))
	b.WriteByte('\n')
	b.WriteString(renderQueue(state.Inbound, colorize))
	if state.Downloading {
		b.WriteString(renderStatusLine("Download", statusInfo, "in progress", colorize))
		b.WriteByte('\n')
	}
	if len(state.Preview) > 0 {
		b.WriteByte('\n')
		b.WriteString(renderPreview(state.Preview, colorize))
	}
	return b.String()
}

func renderPreview(items []queue.PreviewItem, colorize bool) string {
	var b strings.Builder
	b.WriteString(sectionHeader("Drop preview", colorize))
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{item.Name, humanize.Bytes(item.Size), item.Path})
	}
	b.WriteString(renderTable([]column{textCol("Name"), numCol("Size"), pathCol("Path")}, rows))
	b.WriteByte('\n')
	return b.String()
}

// renderNotice formats a notice as a status line, or "" for notices the
// terminal does not show.
func renderNotice(n reconcile.Notice, colorize bool) string {
	label := queueLabel(n.Queue)
	switch n.Kind {
	case reconcile.NoticeCompleted:
		msg := n.Key
		if n.Path != "" {
			msg += " -> " + n.Path
		}
		return renderStatusLine(label, statusOK, msg, colorize)
	case reconcile.NoticeError:
		return renderStatusLine(label, statusError, fmt.Sprintf("%s: %s", n.Key, n.Message), colorize)
	case reconcile.NoticeAborted:
		return renderStatusLine(label, statusWarn, fmt.Sprintf("%s: %s", n.Key, n.Message), colorize)
	case reconcile.NoticeAllComplete:
		return renderStatusLine("Download", statusOK, "all files received", colorize)
	case reconcile.NoticeCommandFailed:
		msg := n.Command
		if n.Key != "" {
			msg += " " + n.Key
		}
		return renderStatusLine("Command", statusError, fmt.Sprintf("%s: %s", msg, n.Message), colorize)
	default:
		return ""
	}
}

func queueLabel(id queue.ID) string {
	switch id {
	case queue.Inbound:
		return "Receive"
	case queue.Outbound:
		return "Send"
	default:
		return "Transfer"
	}
}
