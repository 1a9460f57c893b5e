package sailor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// lineBreak separates the JSON messages of a Docker progress stream.
var lineBreak = regexp.MustCompile(`\r?\n`)

// buildMessage is one JSON line of a Docker build or pull progress stream.
type buildMessage struct {
	Stream      *string `json:"stream"`
	Status      *string `json:"status"`
	ID          string  `json:"id"`
	Progress    string  `json:"progress"`
	Error       *string `json:"error"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
	Aux *struct {
		ID string `json:"ID"`
	} `json:"aux"`
}

// ClassifyBuildLine renders one record of a progress stream. Error events
// return a *BuildError. Lines that are not JSON, or JSON of an unrecognized
// shape, are returned as-is with a trailing newline. Blank lines render as "".
func ClassifyBuildLine(line string) (string, error) {
	if strings.TrimSpace(line) == "" {
		return "", nil
	}

	var msg buildMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return line + "\n", nil
	}

	switch {
	case msg.Error != nil || msg.ErrorDetail != nil:
		message := ""
		if msg.ErrorDetail != nil {
			message = msg.ErrorDetail.Message
		}
		if message == "" && msg.Error != nil {
			message = *msg.Error
		}
		return "", &BuildError{Message: strings.TrimSpace(message)}
	case msg.Stream != nil:
		return *msg.Stream, nil
	case msg.Status != nil:
		return formatStatus(msg.ID, *msg.Status, msg.Progress), nil
	case msg.Aux != nil && msg.Aux.ID != "":
		return "=> " + msg.Aux.ID + "\n", nil
	default:
		return line + "\n", nil
	}
}

func formatStatus(id, status, progress string) string {
	var parts []string
	if id != "" {
		parts = append(parts, id+":")
	}
	parts = append(parts, status)
	if progress != "" {
		parts = append(parts, progress)
	}
	return strings.Join(parts, " ") + "\n"
}

// RenderBuildLog splits body into lines, renders each through
// ClassifyBuildLine, and writes the result to w. It stops at the first error
// event, write failure, or stream failure.
func RenderBuildLog(ctx context.Context, body any, w io.Writer) error {
	for line, err := range SplitText(ctx, body, Pattern(lineBreak)) {
		if err != nil {
			return fmt.Errorf("reading build log: %w", err)
		}
		text, err := ClassifyBuildLine(line)
		if err != nil {
			return err
		}
		if text == "" {
			continue
		}
		if _, err := io.WriteString(w, text); err != nil {
			return fmt.Errorf("writing build log: %w", err)
		}
	}
	return nil
}
