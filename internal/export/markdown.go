package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// MarkdownExporter exports sessions in Markdown format.
type MarkdownExporter struct{}

// Export exports a session to Markdown format.
func (e *MarkdownExporter) Export(session *space.Session, w io.Writer) error {
	title := session.Title
	if title == "" {
		title = "Session " + session.ID
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", title)

	if !session.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", session.CreatedAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", session.MessageCount)

	_, _ = fmt.Fprintf(w, "---\n\n")

	wrote := false
	for _, msg := range session.Messages {
		if msg.IsPlaceholder() {
			continue
		}
		if wrote {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
		wrote = true

		timestamp := ""
		if !msg.Timestamp.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp.Format(time.RFC3339))
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", speakerLabel(msg.Type), timestamp, escapeMarkdown(msg.Content))
	}

	return nil
}

func speakerLabel(t space.MessageType) string {
	switch t {
	case space.MessageUser:
		return "You"
	case space.MessageAssistant:
		return "Assistant"
	case space.MessageSummary:
		return "Summary"
	default:
		return "System"
	}
}

// escapeMarkdown escapes emphasis markers outside code blocks.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format.
func (e *MarkdownExporter) Extension() string {
	return "md"
}
