package events

import (
	"bufio"
	"strings"
)

// readSSEEvent reads one Server-Sent Events frame. Comment lines and the
// "id"/"retry" fields are skipped; multiple data lines are joined with '\n'.
func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	hasData := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && !hasData {
				continue
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			chunk := strings.TrimPrefix(after, " ")
			if hasData {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
			hasData = true
			continue
		}
	}
}
